package services

import (
	"context"
	"fmt"
	"log"

	"github.com/Cyvadra/marketminds/internal/ai"
	"github.com/Cyvadra/marketminds/internal/bus"
	"github.com/Cyvadra/marketminds/internal/models"
	"github.com/Cyvadra/marketminds/internal/settings"
)

// ActionService serves the bus actions of the background process
type ActionService struct {
	orchestrator *ai.Orchestrator
	logger       *log.Logger
}

// NewActionService creates a new action service
func NewActionService(orchestrator *ai.Orchestrator) *ActionService {
	return &ActionService{
		orchestrator: orchestrator,
		logger:       log.New(log.Writer(), "[Actions] ", log.LstdFlags),
	}
}

// SetLogger sets the logger for the service
func (s *ActionService) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// Register installs a handler for every action on server
func (s *ActionService) Register(server *bus.Server) {
	server.Handle(models.ActionChat, s.handle)
	server.Handle(models.ActionAnalyzeFile, s.handle)
	server.Handle(models.ActionMarketData, s.handle)
	server.Handle(models.ActionAnalyzeNews, s.handle)
	server.Handle(models.ActionRiskManagement, s.handle)
	server.Handle(models.ActionEducation, s.handle)
}

// Execute runs a validated request against the orchestrator
func (s *ActionService) Execute(ctx context.Context, req models.Request) (any, error) {
	return s.handle(ctx, req)
}

func (s *ActionService) handle(ctx context.Context, req models.Request) (any, error) {
	var (
		result any
		err    error
	)
	switch r := req.(type) {
	case *models.ChatRequest:
		result, err = s.orchestrator.Chat(ctx, r)
	case *models.FileAnalysisRequest:
		result, err = s.orchestrator.AnalyzeFile(ctx, r)
	case *models.MarketDataRequest:
		result, err = s.orchestrator.MarketData(ctx, r)
	case *models.NewsAnalysisRequest:
		result, err = s.orchestrator.AnalyzeNews(ctx, r)
	case *models.RiskManagementRequest:
		result, err = s.orchestrator.RiskManagement(ctx, r)
	case *models.EducationRequest:
		result, err = s.orchestrator.Education(ctx, r)
	default:
		return nil, fmt.Errorf("%w: %s", bus.ErrUnhandledAction, req.Action())
	}
	if err != nil {
		s.logger.Printf("%s failed: %v", req.Action(), err)
		return nil, err
	}
	return result, nil
}

// APIKeyResolver prefers the key stored in settings and falls back to the
// configured key
func APIKeyResolver(store *settings.Store, fallback string) ai.KeyResolver {
	return func(ctx context.Context) string {
		if key := store.Get(ctx, settings.KeyGeminiAPIKey).GeminiAPIKey; key != "" {
			return key
		}
		return fallback
	}
}
