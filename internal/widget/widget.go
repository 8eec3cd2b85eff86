// Package widget drives the floating chat panel of a UI context. It keeps a
// projection of the shared settings, the visible transcript and the
// idle/awaitingResponse state of a chat exchange, and talks to the
// background only through the message bus.
package widget

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Cyvadra/marketminds/internal/ai"
	"github.com/Cyvadra/marketminds/internal/bus"
	"github.com/Cyvadra/marketminds/internal/history"
	"github.com/Cyvadra/marketminds/internal/models"
	"github.com/Cyvadra/marketminds/internal/settings"
)

// ContextWindow is the number of prior messages sent with a chat request
const ContextWindow = 5

// WelcomeMessage is shown when a widget opens with no stored history
const WelcomeMessage = "Welcome to MarketMinds AI! I'm your professional trading assistant. Ask me about market analysis, trading strategies, or any trading-related questions."

// Widget errors
var (
	ErrBusy   = errors.New("widget: a request is already awaiting a response")
	ErrClosed = errors.New("widget: closed")
)

// State is the chat interaction state
type State int

const (
	StateIdle State = iota
	StateAwaitingResponse
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaitingResponse"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Controller is the UI-side state of one chat widget
type Controller struct {
	client   *bus.Client
	history  *history.Store
	settings *settings.Store
	watcher  *settings.Watcher
	logger   *log.Logger
	now      func() time.Time

	// lifetime ends on Close and cancels requests still awaiting a reply
	lifetime context.Context
	cancel   context.CancelFunc

	mu       sync.Mutex
	state    State
	messages []models.ChatMessage
	welcome  *models.ChatMessage
	closed   bool
}

// New opens a widget: it loads the stored transcript and starts following
// settings changes.
func New(ctx context.Context, client *bus.Client, historyStore *history.Store, settingsStore *settings.Store) *Controller {
	c := &Controller{
		client:   client,
		history:  historyStore,
		settings: settingsStore,
		logger:   log.New(log.Writer(), "[Widget] ", log.LstdFlags),
		now:      time.Now,
	}
	c.lifetime, c.cancel = context.WithCancel(context.Background())

	messages, err := historyStore.GetChatHistory(ctx)
	if err != nil {
		c.logger.Printf("Failed to load chat history: %v", err)
	}
	c.messages = messages
	if len(c.messages) == 0 {
		c.resetWelcome()
	}

	c.watcher = settingsStore.Watch(ctx)
	return c
}

// SetLogger sets the logger for the controller
func (c *Controller) SetLogger(logger *log.Logger) {
	c.logger = logger
}

// SetClock replaces the time source used to stamp messages
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// State returns the current chat state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns the visible transcript, welcome message included
func (c *Controller) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ChatMessage, 0, len(c.messages)+1)
	if c.welcome != nil {
		out = append(out, *c.welcome)
	}
	return append(out, c.messages...)
}

// Settings returns the widget's projection of the shared settings
func (c *Controller) Settings() settings.Settings {
	return c.watcher.Current()
}

// Enabled reports whether the widget should be rendered
func (c *Controller) Enabled() bool {
	return c.watcher.Current().Enabled
}

// Position returns the stored placement of the floating button
func (c *Controller) Position() settings.Position {
	return c.watcher.Current().Position
}

// OnSettingsChange registers fn for settings edits made by any context
func (c *Controller) OnSettingsChange(fn settings.Listener) func() {
	return c.watcher.OnChange(fn)
}

// MoveTo persists a new button position
func (c *Controller) MoveTo(ctx context.Context, pos settings.Position) error {
	return c.settings.Update(ctx, settings.Patch{Position: &pos})
}

// SetEnabled persists the enabled flag
func (c *Controller) SetEnabled(ctx context.Context, enabled bool) error {
	return c.settings.Update(ctx, settings.Patch{Enabled: &enabled})
}

// Send posts a chat message and waits for the assistant's reply. A failed
// request still yields an assistant message describing the failure. It
// returns ErrBusy while another exchange is awaiting its reply.
func (c *Controller) Send(ctx context.Context, text string) (models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatMessage{}, &models.ValidationError{Field: "message", Reason: "is required"}
	}

	user := models.NewChatMessage(models.RoleUser, text, c.now())
	prior, err := c.begin(user)
	if err != nil {
		return models.ChatMessage{}, err
	}

	reqCtx, stop := c.requestContext(ctx)
	defer stop()

	req := &models.ChatRequest{
		Message: text,
		Context: models.ChatContext{
			PreviousMessages: prior,
			TradingContext:   true,
		},
	}
	resp, err := bus.Invoke[ai.ChatResponse](reqCtx, c.client, req)

	var reply models.ChatMessage
	if err != nil {
		c.logger.Printf("Chat request failed: %v", err)
		reply = models.NewChatMessage(models.RoleAssistant, fmt.Sprintf(
			"Sorry, I encountered an error: %s. Please check your API key in the extension settings.", message(err)), c.now())
	} else {
		reply = models.NewChatMessage(models.RoleAssistant, resp.Text, c.now())
	}
	return c.complete(ctx, reply)
}

// UploadFile sends a file for analysis. Size and type are checked before
// anything is sent or appended.
func (c *Controller) UploadFile(ctx context.Context, name, mimeType string, data []byte) (models.ChatMessage, error) {
	if err := models.CheckFile(mimeType, len(data)); err != nil {
		return models.ChatMessage{}, err
	}

	kind := "file"
	if strings.Contains(mimeType, "image") {
		kind = "image"
	}
	meta := &models.MessageMetadata{FileName: name, FileType: mimeType}

	user := models.NewChatMessage(models.RoleUser, fmt.Sprintf("[Uploaded %s: %s]", kind, name), c.now())
	user.Metadata = meta
	if _, err := c.begin(user); err != nil {
		return models.ChatMessage{}, err
	}

	reqCtx, stop := c.requestContext(ctx)
	defer stop()

	req := &models.FileAnalysisRequest{
		File:     base64.StdEncoding.EncodeToString(data),
		Type:     mimeType,
		FileName: name,
	}
	resp, err := bus.Invoke[ai.FileAnalysisResponse](reqCtx, c.client, req)

	var reply models.ChatMessage
	if err != nil {
		c.logger.Printf("File analysis failed: %v", err)
		reply = models.NewChatMessage(models.RoleAssistant, fmt.Sprintf("Error analyzing file: %s", message(err)), c.now())
	} else {
		reply = models.NewChatMessage(models.RoleAssistant, resp.Analysis, c.now())
		reply.Metadata = meta
	}
	return c.complete(ctx, reply)
}

// ClearHistory empties the transcript and removes the stored history. It
// returns ErrBusy while a reply is pending, since that reply would be saved
// on its own afterwards.
func (c *Controller) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.messages = nil
	c.resetWelcome()
	c.mu.Unlock()

	return c.history.ClearChatHistory(ctx)
}

// Close cancels any request awaiting a reply and stops following settings.
// A reply arriving afterwards is dropped.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.watcher.Close()
	return nil
}

// begin moves idle to awaitingResponse and appends the user's message. It
// returns the context window preceding that message.
func (c *Controller) begin(user models.ChatMessage) ([]models.ChatMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.state != StateIdle {
		return nil, ErrBusy
	}

	prior := c.messages
	if len(prior) > ContextWindow {
		prior = prior[len(prior)-ContextWindow:]
	}
	prior = append([]models.ChatMessage(nil), prior...)

	c.welcome = nil
	c.messages = append(c.messages, user)
	c.state = StateAwaitingResponse
	return prior, nil
}

// complete appends reply, saves the transcript when auto-save is on and
// returns to idle
func (c *Controller) complete(ctx context.Context, reply models.ChatMessage) (models.ChatMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.ChatMessage{}, ErrClosed
	}
	c.messages = append(c.messages, reply)
	transcript := append([]models.ChatMessage(nil), c.messages...)
	c.mu.Unlock()

	// Saving before returning to idle keeps snapshots from landing out of order.
	if c.watcher.Current().AutoSaveChats {
		if err := c.history.SaveChatHistory(ctx, transcript); err != nil {
			c.logger.Printf("Failed to save chat history: %v", err)
		}
	}

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	return reply, nil
}

// requestContext derives a context that also ends when the widget closes
func (c *Controller) requestContext(ctx context.Context) (context.Context, func()) {
	reqCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.lifetime, cancel)
	return reqCtx, func() {
		stop()
		cancel()
	}
}

func (c *Controller) resetWelcome() {
	welcome := models.NewChatMessage(models.RoleAssistant, WelcomeMessage, c.now())
	c.welcome = &welcome
}

// message extracts the displayable text of a failure
func message(err error) string {
	var remote *bus.RemoteError
	if errors.As(err, &remote) {
		return remote.Message
	}
	return err.Error()
}
