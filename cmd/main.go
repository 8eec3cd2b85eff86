package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Cyvadra/marketminds/internal/ai"
	"github.com/Cyvadra/marketminds/internal/bus"
	"github.com/Cyvadra/marketminds/internal/config"
	"github.com/Cyvadra/marketminds/internal/database"
	"github.com/Cyvadra/marketminds/internal/handlers"
	"github.com/Cyvadra/marketminds/internal/routes"
	"github.com/Cyvadra/marketminds/internal/services"
	"github.com/Cyvadra/marketminds/internal/settings"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Parse command line flags
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	if err := database.InitDatabase(cfg.Database.DSN); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	ctx := context.Background()
	areas, err := services.OpenAreas(ctx, cfg, database.GetDB())
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer areas.Close()

	h, err := setupServices(ctx, cfg, areas)
	if err != nil {
		log.Fatalf("Failed to set up services: %v", err)
	}

	// Set up Gin
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Add middleware
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// Set up routes
	routes.SetupRoutes(r, h)

	// Start server
	addr := cfg.Addr()
	log.Printf("Starting server on %s", addr)
	log.Printf("Message bus: ws://%s/api/extension/bus", addr)
	log.Printf("Health check: http://%s/health", addr)

	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// loadConfig reads filename, writing the defaults there on first start, and
// applies environment overrides
func loadConfig(filename string) (*config.Config, error) {
	cfg, err := config.LoadConfig(filename)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("Config %s not found, creating default config", filename)
		cfg = config.Default()
		if err := config.SaveConfig(cfg, filename); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupServices wires the background context: settings bootstrap, the AI
// orchestrator behind the message bus, and the backend record services
func setupServices(ctx context.Context, cfg *config.Config, areas *services.Areas) (routes.Handlers, error) {
	settingsStore := settings.NewStore(areas.Sync)
	if err := settingsStore.Initialize(ctx); err != nil {
		return routes.Handlers{}, fmt.Errorf("failed to initialize settings: %w", err)
	}

	model := ai.NewKeyedModel(services.APIKeyResolver(settingsStore, cfg.AI.APIKey))
	orchestrator := ai.NewOrchestrator(model, cfg.AI.Config)

	server := bus.NewServer(bus.ServerOptions{MaxInFlight: cfg.Bus.ServerMaxInFlight})
	actions := services.NewActionService(orchestrator)
	actions.Register(server)
	log.Printf("Message bus serving %d actions", len(server.Actions()))

	notify := services.NewNotifyService(settingsStore)
	notify.SetConfig(cfg)
	records := services.NewRecordService(database.GetDB())

	return routes.Handlers{
		Extension: handlers.NewExtensionHandler(actions),
		Records:   handlers.NewRecordHandler(records, notify),
		Bus:       handlers.NewBusHandler(server, cfg.Bus.AllowedOrigins),
	}, nil
}
