package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/Cyvadra/marketminds/internal/models"
	"golang.org/x/sync/semaphore"
)

// HandlerFunc serves one decoded and validated request
type HandlerFunc func(ctx context.Context, req models.Request) (any, error)

// ServerOptions tunes a Server
type ServerOptions struct {
	// MaxInFlight bounds concurrent requests per connection
	MaxInFlight int64
}

// Server is the background side of the bus. Every request is served on
// its own goroutine and replied to when its handler returns, so a slow
// action never holds up the others on the same connection.
type Server struct {
	mu       sync.RWMutex
	handlers map[models.Action]HandlerFunc

	maxInFlight int64
	logger      *log.Logger
}

// NewServer creates a server with no handlers
func NewServer(opts ServerOptions) *Server {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 16
	}
	return &Server{
		handlers:    make(map[models.Action]HandlerFunc),
		maxInFlight: opts.MaxInFlight,
		logger:      log.New(log.Writer(), "[Bus] ", log.LstdFlags),
	}
}

// SetLogger sets the logger for the server
func (s *Server) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// Handle registers h for action, replacing any earlier handler
func (s *Server) Handle(action models.Action, h HandlerFunc) {
	s.mu.Lock()
	s.handlers[action] = h
	s.mu.Unlock()
}

// Actions returns the registered actions
func (s *Server) Actions() []models.Action {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actions := make([]models.Action, 0, len(s.handlers))
	for a := range s.handlers {
		actions = append(actions, a)
	}
	return actions
}

// Dispatch decodes env, runs its handler and builds the reply
func (s *Server) Dispatch(ctx context.Context, env Envelope) Reply {
	s.mu.RLock()
	h, ok := s.handlers[env.Action]
	s.mu.RUnlock()
	if !ok {
		return failureReply(env.ID, fmt.Errorf("%w: %s", ErrUnhandledAction, env.Action))
	}

	req, err := models.DecodeRequest(env.Action, env.Payload)
	if err != nil {
		if errors.Is(err, models.ErrUnknownAction) {
			return failureReply(env.ID, fmt.Errorf("%w: %s", ErrUnhandledAction, env.Action))
		}
		return failureReply(env.ID, err)
	}

	data, err := s.run(ctx, h, req)
	if err != nil {
		return failureReply(env.ID, err)
	}
	return successReply(env.ID, data)
}

func (s *Server) run(ctx context.Context, h HandlerFunc, req models.Request) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("Handler for %s panicked: %v", req.Action(), r)
			err = fmt.Errorf("%s failed: internal error", req.Action())
		}
	}()
	return h(ctx, req)
}

// Serve answers requests arriving on conn until the transport closes or
// ctx ends. Handlers still running when it returns see their ctx cancelled.
func (s *Server) Serve(ctx context.Context, conn Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	sem := semaphore.NewWeighted(s.maxInFlight)
	var wg sync.WaitGroup
	finish := func(err error) error {
		cancel()
		wg.Wait()
		return err
	}

	for {
		frame, err := conn.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrTransportClosed) {
				return finish(nil)
			}
			return finish(err)
		}

		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			s.logger.Printf("Rejecting frame: %v", err)
			s.reject(ctx, conn, frame, err)
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			return finish(nil)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			reply := s.Dispatch(ctx, env)
			if err := s.send(ctx, conn, reply); err != nil {
				s.logger.Printf("Reply to %s %s lost: %v", env.Action, env.ID, err)
			}
		}()
	}
}

// reject answers a frame that could not be decoded, if it carried an id
func (s *Server) reject(ctx context.Context, conn Conn, frame []byte, cause error) {
	var probe struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(frame, &probe) != nil || probe.ID == "" {
		return
	}
	if err := s.send(ctx, conn, failureReply(probe.ID, cause)); err != nil {
		s.logger.Printf("Reply to %s lost: %v", probe.ID, err)
	}
}

func (s *Server) send(ctx context.Context, conn Conn, reply Reply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return conn.Send(ctx, data)
}

// Connect serves a fresh in-process connection and returns its client end
func Connect(ctx context.Context, s *Server, opts ClientOptions) *Client {
	local, remote := Pipe()
	go func() {
		if err := s.Serve(ctx, remote); err != nil {
			s.logger.Printf("Local connection ended: %v", err)
		}
	}()
	return NewClient(local, opts)
}
