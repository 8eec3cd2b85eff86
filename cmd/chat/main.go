// Command chat is a terminal UI context: it joins the background's message
// bus over websocket and drives a chat widget from standard input.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/Cyvadra/marketminds/internal/bus"
	"github.com/Cyvadra/marketminds/internal/config"
	"github.com/Cyvadra/marketminds/internal/database"
	"github.com/Cyvadra/marketminds/internal/history"
	"github.com/Cyvadra/marketminds/internal/models"
	"github.com/Cyvadra/marketminds/internal/services"
	"github.com/Cyvadra/marketminds/internal/settings"
	"github.com/Cyvadra/marketminds/internal/widget"
	"github.com/joho/godotenv"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	busURL := flag.String("bus", "", "Message bus URL (default ws://<server>/api/extension/bus)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}
	if *busURL == "" {
		*busURL = fmt.Sprintf("ws://%s/api/extension/bus", cfg.Addr())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := database.InitDatabase(cfg.Database.DSN); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	areas, err := services.OpenAreas(ctx, cfg, database.GetDB())
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer areas.Close()

	conn, err := bus.Dial(ctx, *busURL, 5)
	if err != nil {
		log.Fatalf("Failed to reach the message bus at %s: %v", *busURL, err)
	}
	client := bus.NewClient(conn, bus.ClientOptions{
		MaxInFlight: cfg.Bus.ClientMaxInFlight,
		Timeout:     cfg.Bus.RequestTimeout,
	})
	defer client.Close()

	settingsStore := settings.NewStore(areas.Sync)
	w := widget.New(ctx, client, history.NewStore(areas.Local, settingsStore), settingsStore)
	defer w.Close()

	for _, m := range w.Messages() {
		printMessage(m)
	}
	fmt.Println("Commands: /upload <path>, /clear, /quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case line == "":
		case line == "/quit":
			return
		case line == "/clear":
			if err := w.ClearHistory(ctx); err != nil {
				log.Printf("Failed to clear history: %v", err)
			}
		case strings.HasPrefix(line, "/upload "):
			reply, err := upload(ctx, w, strings.TrimSpace(strings.TrimPrefix(line, "/upload ")))
			if err != nil {
				fmt.Println(err)
				continue
			}
			printMessage(reply)
		default:
			reply, err := w.Send(ctx, line)
			if err != nil {
				fmt.Println(err)
				continue
			}
			printMessage(reply)
		}
	}
}

func upload(ctx context.Context, w *widget.Controller, path string) (models.ChatMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ChatMessage{}, err
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	// Drop parameters such as "; charset=utf-8"
	mimeType, _, _ = strings.Cut(mimeType, ";")
	return w.UploadFile(ctx, filepath.Base(path), strings.TrimSpace(mimeType), data)
}

func printMessage(m models.ChatMessage) {
	fmt.Printf("[%s] %s\n", m.Role, m.Content)
}
