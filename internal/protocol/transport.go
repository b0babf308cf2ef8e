package protocol

import (
	"errors"
	"sync"
)

// Transport carries raw envelope frames to the peer context. Implementations
// must be safe for concurrent writes.
type Transport interface {
	WriteFrame(data []byte) error
	Close() error
}

// ErrTransportClosed is returned by writes on a closed transport.
var ErrTransportClosed = errors.New("transport closed")

// PipeEnd is one end of an in-memory frame pipe. Frames written to one end are
// delivered asynchronously to the peer's receiver, mirroring the fire-and-forget
// delivery of a message port. Used by tests to connect a Channel to a Dispatcher.
type PipeEnd struct {
	mu       sync.Mutex
	peer     *PipeEnd
	receiver func(data []byte)
	closed   bool
}

// Pipe creates two connected in-memory transport ends.
func Pipe() (*PipeEnd, *PipeEnd) {
	a := &PipeEnd{}
	b := &PipeEnd{}
	a.peer = b
	b.peer = a
	return a, b
}

// SetReceiver installs the inbound frame handler for this end.
func (p *PipeEnd) SetReceiver(fn func(data []byte)) {
	p.mu.Lock()
	p.receiver = fn
	p.mu.Unlock()
}

// WriteFrame delivers the frame to the peer's receiver on a fresh goroutine.
func (p *PipeEnd) WriteFrame(data []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrTransportClosed
	}
	peer := p.peer
	p.mu.Unlock()

	peer.mu.Lock()
	fn := peer.receiver
	closed := peer.closed
	peer.mu.Unlock()
	if closed || fn == nil {
		return nil
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	go fn(buf)
	return nil
}

// Close marks this end closed. Pending deliveries already in flight still land.
func (p *PipeEnd) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
