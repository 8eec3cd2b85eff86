package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Cyvadra/marketminds/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ClientOptions tunes a Client; zero values pick the defaults
type ClientOptions struct {
	// MaxInFlight bounds concurrent requests; callers beyond it wait
	MaxInFlight int64
	// Timeout bounds each request when the caller's ctx has no deadline
	Timeout time.Duration
}

// DefaultClientOptions returns the options used for zero fields
func DefaultClientOptions() ClientOptions {
	return ClientOptions{MaxInFlight: 4, Timeout: 60 * time.Second}
}

// Client is the UI side of the bus
type Client struct {
	conn    Conn
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *log.Logger

	mu      sync.Mutex
	pending map[string]chan Reply
	err     error

	done chan struct{}
}

// NewClient starts a client on conn. The client owns conn from now on.
func NewClient(conn Conn, opts ClientOptions) *Client {
	defaults := DefaultClientOptions()
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = defaults.MaxInFlight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}

	c := &Client{
		conn:    conn,
		sem:     semaphore.NewWeighted(opts.MaxInFlight),
		timeout: opts.Timeout,
		logger:  log.New(log.Writer(), "[Bus] ", log.LstdFlags),
		pending: make(map[string]chan Reply),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// SetLogger sets the logger for the client
func (c *Client) SetLogger(logger *log.Logger) {
	c.logger = logger
}

// Send validates req and issues it. Invalid requests never reach the
// transport.
func (c *Client) Send(ctx context.Context, req models.Request) (json.RawMessage, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}
	return c.Call(ctx, req.Action(), req)
}

// Call issues one request for action and waits for its reply
func (c *Client) Call(ctx context.Context, action models.Action, payload any) (json.RawMessage, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	env, err := NewEnvelope(uuid.NewString(), action, payload)
	if err != nil {
		return nil, err
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	replies, err := c.register(env.ID)
	if err != nil {
		return nil, err
	}
	defer c.unregister(env.ID)

	if err := c.conn.Send(ctx, frame); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transportError(err)
	}

	select {
	case reply := <-replies:
		return c.unwrap(action, reply)
	case <-c.done:
		// A reply may have landed just before the transport went away.
		select {
		case reply := <-replies:
			return c.unwrap(action, reply)
		default:
		}
		return nil, c.closeErr()
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", action, ctx.Err())
	}
}

// Close tears the transport down, failing every pending request
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

// Done is closed once the transport is gone
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) unwrap(action models.Action, reply Reply) (json.RawMessage, error) {
	if !reply.Success {
		msg := reply.Error
		if msg == "" {
			msg = fmt.Sprintf("%s failed", action)
		}
		return nil, &RemoteError{Action: action, Message: msg}
	}
	return reply.Data, nil
}

func (c *Client) register(id string) (chan Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	ch := make(chan Reply, 1)
	c.pending[id] = ch
	return ch, nil
}

func (c *Client) unregister(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) readLoop() {
	for {
		frame, err := c.conn.Recv()
		if err != nil {
			c.mu.Lock()
			c.err = transportError(err)
			c.pending = make(map[string]chan Reply)
			c.mu.Unlock()
			close(c.done)
			return
		}

		var reply Reply
		if err := json.Unmarshal(frame, &reply); err != nil {
			c.logger.Printf("Dropping malformed reply: %v", err)
			continue
		}

		// Each id is answered at most once.
		c.mu.Lock()
		ch, ok := c.pending[reply.ID]
		delete(c.pending, reply.ID)
		c.mu.Unlock()
		if !ok {
			c.logger.Printf("Dropping reply for unknown request %q", reply.ID)
			continue
		}
		ch <- reply
	}
}

// Invoke sends req over c and decodes the reply data into T
func Invoke[T any](ctx context.Context, c *Client, req models.Request) (T, error) {
	var out T
	data, err := c.Send(ctx, req)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to decode %s result: %w", req.Action(), err)
	}
	return out, nil
}
