package client

import (
	"errors"
	"fmt"
	"sync"

	"room-broker/internal/protocol"
)

// ErrSuperseded reports that a newer request of the same kind replaced a
// pending one before the broker answered.
var ErrSuperseded = errors.New("cancelled due to newer request")

type pendingResult struct {
	desc protocol.RoomDescriptor
	err  error
}

// pendingTable correlates request/response pairs over the socket. The
// broker answers with ResolvePromise or RejectPromise carrying the func
// tag of the original request, so at most one request per tag can be in
// flight; issuing another supersedes the first.
type pendingTable struct {
	mu      sync.Mutex
	waiters map[protocol.MessageType]chan pendingResult
}

func newPendingTable() *pendingTable {
	return &pendingTable{waiters: make(map[protocol.MessageType]chan pendingResult)}
}

// add registers a waiter for fn, rejecting any previous one.
func (p *pendingTable) add(fn protocol.MessageType) chan pendingResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.waiters[fn]; ok {
		prev <- pendingResult{err: fmt.Errorf("%w: %s", ErrSuperseded, fn)}
	}
	ch := make(chan pendingResult, 1)
	p.waiters[fn] = ch
	return ch
}

// settle delivers the broker's answer to the waiter for fn, if any.
func (p *pendingTable) settle(fn protocol.MessageType, res pendingResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.waiters[fn]; ok {
		delete(p.waiters, fn)
		ch <- res
	}
}

// failAll rejects every outstanding waiter, used when the connection dies.
func (p *pendingTable) failAll(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for fn, ch := range p.waiters {
		delete(p.waiters, fn)
		ch <- pendingResult{err: err}
	}
}
