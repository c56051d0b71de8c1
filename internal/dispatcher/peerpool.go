package dispatcher

import (
	"fmt"
	"net"
	"net/rpc"
	"sync"
	"time"

	"chordring/internal/logger"
)

// peerPool manages reusable net/rpc client connections keyed by peer
// address, with periodic eviction of idle connections. Grounded on the
// teacher's gRPC connection-manager pattern, retargeted at net/rpc.
type peerPool struct {
	mu          sync.RWMutex
	conns       map[string]*peerEntry
	dialTimeout time.Duration
	idleTTL     time.Duration
	stopCh      chan struct{}
	logger      logger.Logger
}

type peerEntry struct {
	client   *rpc.Client
	lastUsed time.Time
}

func newPeerPool(dialTimeout, idleTTL time.Duration, lgr logger.Logger) *peerPool {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	p := &peerPool{
		conns:       make(map[string]*peerEntry),
		dialTimeout: dialTimeout,
		idleTTL:     idleTTL,
		stopCh:      make(chan struct{}),
		logger:      lgr,
	}
	if idleTTL > 0 {
		go p.evictLoop()
	}
	return p
}

func (p *peerPool) getClient(addr string) (*rpc.Client, error) {
	p.mu.RLock()
	if e, ok := p.conns[addr]; ok {
		e.lastUsed = time.Now()
		c := e.client
		p.mu.RUnlock()
		return c, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.conns[addr]; ok {
		e.lastUsed = time.Now()
		return e.client, nil
	}

	conn, err := net.DialTimeout("tcp", addr, p.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: dial %s: %w", addr, err)
	}
	client := rpc.NewClient(conn)
	p.conns[addr] = &peerEntry{client: client, lastUsed: time.Now()}
	return client, nil
}

// invalidate closes and evicts the cached connection for addr, forcing the
// next Send to redial. Called whenever a call to addr fails.
func (p *peerPool) invalidate(addr string) {
	p.mu.Lock()
	e, ok := p.conns[addr]
	if ok {
		delete(p.conns, addr)
	}
	p.mu.Unlock()
	if ok {
		_ = e.client.Close()
	}
}

func (p *peerPool) evictLoop() {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-t.C:
			p.evictIdle()
		}
	}
}

func (p *peerPool) evictIdle() {
	now := time.Now()
	var stale []*rpc.Client
	p.mu.Lock()
	for addr, e := range p.conns {
		if now.Sub(e.lastUsed) >= p.idleTTL {
			stale = append(stale, e.client)
			delete(p.conns, addr)
		}
	}
	p.mu.Unlock()
	for _, c := range stale {
		_ = c.Close()
	}
	if len(stale) > 0 {
		p.logger.Debug("peer pool: evicted idle connections", logger.F("count", len(stale)))
	}
}

func (p *peerPool) Close() {
	close(p.stopCh)
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, e := range p.conns {
		_ = e.client.Close()
		delete(p.conns, addr)
	}
}
