package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Cyvadra/marketminds/internal/config"
	"github.com/Cyvadra/marketminds/internal/models"
	"github.com/Cyvadra/marketminds/internal/settings"
	"github.com/go-resty/resty/v2"
)

// NotifyService forwards trading alerts to the configured endpoints when
// notifications are enabled in settings
type NotifyService struct {
	client   *resty.Client
	config   *config.Config
	settings *settings.Store
	logger   *log.Logger

	telegramURL string
}

// NewNotifyService creates a new notify service
func NewNotifyService(store *settings.Store) *NotifyService {
	return &NotifyService{
		client:      resty.New().SetTimeout(10 * time.Second),
		settings:    store,
		logger:      log.New(log.Writer(), "[Notify] ", log.LstdFlags),
		telegramURL: "https://api.telegram.org",
	}
}

// SetConfig sets the configuration for the notify service
func (s *NotifyService) SetConfig(cfg *config.Config) {
	s.config = cfg
}

// SetLogger sets the logger for the service
func (s *NotifyService) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// NotifyAlert sends alert to every active endpoint. It returns without
// sending anything when notifications are switched off.
func (s *NotifyService) NotifyAlert(ctx context.Context, alert *models.AlertRecord) error {
	if s.config == nil {
		return fmt.Errorf("configuration not set")
	}
	if !s.settings.Get(ctx, settings.KeyNotifications).Notifications {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, endpoint := range s.config.Endpoints {
		if !endpoint.IsActive {
			continue
		}

		wg.Add(1)
		go func(ep config.EndpointConfig) {
			defer wg.Done()
			if err := s.notifyEndpoint(ctx, alert, ep); err != nil {
				s.logger.Printf("Failed to notify %s (%s): %v", ep.Name, ep.Type, err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", ep.Name, err))
				mu.Unlock()
			}
		}(endpoint)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (s *NotifyService) notifyEndpoint(ctx context.Context, alert *models.AlertRecord, endpoint config.EndpointConfig) error {
	switch endpoint.Type {
	case "telegram":
		return s.post(ctx, "telegram", fmt.Sprintf("%s/bot%s/sendMessage", s.telegramURL, endpoint.Token), map[string]interface{}{
			"chat_id":    endpoint.ChatID,
			"text":       formatAlert(alert, true),
			"parse_mode": "HTML",
		})
	case "wechat", "dingtalk":
		return s.post(ctx, endpoint.Type, endpoint.URL, map[string]interface{}{
			"msgtype": "text",
			"text": map[string]string{
				"content": formatAlert(alert, false),
			},
		})
	case "webhook":
		return s.post(ctx, "webhook", endpoint.URL, alert)
	default:
		return fmt.Errorf("unsupported endpoint type: %s", endpoint.Type)
	}
}

func (s *NotifyService) post(ctx context.Context, kind, url string, payload interface{}) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(url)

	if err != nil {
		return fmt.Errorf("%s request failed: %w", kind, err)
	}

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return fmt.Errorf("%s returned status %d: %s", kind, resp.StatusCode(), resp.String())
	}

	return nil
}

// formatAlert renders an alert for chat-style endpoints
func formatAlert(alert *models.AlertRecord, html bool) string {
	bold := func(s string) string {
		if html {
			return "<b>" + s + "</b>"
		}
		return s
	}

	var sb strings.Builder
	sb.WriteString("🚨 " + bold("Price Alert") + "\n\n")
	sb.WriteString(fmt.Sprintf("💱 %s %s\n", bold("Symbol:"), alert.Symbol))
	sb.WriteString(fmt.Sprintf("⚡ %s %s\n", bold("Condition:"), strings.ToUpper(alert.Condition)))
	sb.WriteString(fmt.Sprintf("🎯 %s %.8g\n", bold("Target:"), alert.TargetPrice))
	if alert.CurrentPrice != nil {
		sb.WriteString(fmt.Sprintf("💰 %s %.8g\n", bold("Current:"), *alert.CurrentPrice))
	}
	sb.WriteString(fmt.Sprintf("⏰ %s %s", bold("Time:"), alert.CreatedAt.Format("2006-01-02 15:04:05")))
	return sb.String()
}
