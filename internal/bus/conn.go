package bus

import (
	"context"
	"sync"
)

// Conn is a message-oriented duplex channel. Send may be called from many
// goroutines; Recv is called by a single reader. Both fail with an error
// matching ErrTransportClosed once either side has closed.
type Conn interface {
	Send(ctx context.Context, msg []byte) error
	Recv() ([]byte, error)
	Close() error
}

type pipe struct {
	once   *sync.Once
	closed chan struct{}
}

type pipeEnd struct {
	pipe
	in  <-chan []byte
	out chan<- []byte
}

// Pipe returns both ends of an in-process connection. Closing either end
// tears the whole channel down.
func Pipe() (Conn, Conn) {
	p := pipe{once: new(sync.Once), closed: make(chan struct{})}
	ab := make(chan []byte, 16)
	ba := make(chan []byte, 16)
	return &pipeEnd{pipe: p, in: ba, out: ab}, &pipeEnd{pipe: p, in: ab, out: ba}
}

func (p *pipeEnd) Send(ctx context.Context, msg []byte) error {
	select {
	case <-p.closed:
		return ErrTransportClosed
	default:
	}

	buf := make([]byte, len(msg))
	copy(buf, msg)
	select {
	case p.out <- buf:
		return nil
	case <-p.closed:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Recv() ([]byte, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.closed:
		return nil, ErrTransportClosed
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
