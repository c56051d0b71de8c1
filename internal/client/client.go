// Package client is the CLI's connection manager: a pooled net/rpc client
// per node address, with idle eviction, and the high-level Put/Get/Delete/
// Lookup/RoutingTable calls the interactive shell and the load tester drive
// it through.
package client

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"sync"
	"time"

	"chordring/internal/backup"
	"chordring/internal/diag"
	"chordring/internal/domain"
	"chordring/internal/logger"
)

// Manager pools net/rpc connections to ring nodes, keyed by address.
type Manager struct {
	mu          sync.RWMutex
	conns       map[string]*connEntry
	dialTimeout time.Duration
	idleTTL     time.Duration
	lgr         logger.Logger
	stopCh      chan struct{}
}

type connEntry struct {
	client   *rpc.Client
	lastUsed time.Time
}

// Option customizes a Manager at construction time.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.lgr = l
		}
	}
}

// New builds a Manager. idleTTL <= 0 disables eviction.
func New(dialTimeout, idleTTL time.Duration, opts ...Option) *Manager {
	m := &Manager{
		conns:       make(map[string]*connEntry),
		dialTimeout: dialTimeout,
		idleTTL:     idleTTL,
		lgr:         &logger.NopLogger{},
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if idleTTL > 0 {
		go m.evictLoop()
	}
	return m
}

// Close closes every pooled connection and stops the eviction loop.
func (m *Manager) Close() {
	close(m.stopCh)
	m.mu.Lock()
	defer m.mu.Unlock()
	for addr, ce := range m.conns {
		_ = ce.client.Close()
		delete(m.conns, addr)
	}
}

func (m *Manager) getConn(addr string) (*rpc.Client, error) {
	m.mu.RLock()
	if ce, ok := m.conns[addr]; ok {
		ce.lastUsed = time.Now()
		c := ce.client
		m.mu.RUnlock()
		return c, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if ce, ok := m.conns[addr]; ok {
		ce.lastUsed = time.Now()
		return ce.client, nil
	}

	conn, err := net.DialTimeout("tcp", addr, m.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	c := rpc.NewClient(conn)
	m.conns[addr] = &connEntry{client: c, lastUsed: time.Now()}
	return c, nil
}

// invalidate drops addr from the pool after a failed call, so the next
// request re-dials instead of reusing a broken connection.
func (m *Manager) invalidate(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ce, ok := m.conns[addr]; ok {
		_ = ce.client.Close()
		delete(m.conns, addr)
	}
}

func (m *Manager) evictLoop() {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	now := time.Now()
	var toClose []*rpc.Client

	m.mu.Lock()
	for addr, ce := range m.conns {
		if now.Sub(ce.lastUsed) >= m.idleTTL {
			toClose = append(toClose, ce.client)
			delete(m.conns, addr)
		}
	}
	m.mu.Unlock()

	for _, c := range toClose {
		_ = c.Close()
	}
}

func (m *Manager) call(ctx context.Context, addr, method string, args, reply any) error {
	c, err := m.getConn(addr)
	if err != nil {
		return err
	}
	call := c.Go(method, args, reply, make(chan *rpc.Call, 1))
	select {
	case res := <-call.Done:
		if res.Error != nil {
			m.invalidate(addr)
			return fmt.Errorf("client: %s %s: %w", addr, method, res.Error)
		}
		return nil
	case <-ctx.Done():
		m.invalidate(addr)
		return ctx.Err()
	}
}

// Client is a thin, address-scoped facade over Manager for the commands the
// interactive shell and tester run.
type Client struct {
	mgr *Manager
}

// NewClient builds a Client over mgr.
func NewClient(mgr *Manager) *Client {
	return &Client{mgr: mgr}
}

// Put asks addr's Backup service to store value under rawKey. The request
// is not routed through the ring: addr's Backup service accepts or rejects
// it by its own ownership check.
func (c *Client) Put(ctx context.Context, addr, rawKey string, value []byte) error {
	req := &backup.StoreRequest{RawKey: rawKey, Value: value}
	return c.mgr.call(ctx, addr, backup.ServiceName+".Store", req, &backup.StoreReply{})
}

// Get retrieves the value stored under rawKey through addr.
func (c *Client) Get(ctx context.Context, addr, rawKey string) ([]byte, error) {
	req := &backup.FetchRequest{RawKey: rawKey}
	var reply backup.FetchReply
	if err := c.mgr.call(ctx, addr, backup.ServiceName+".Fetch", req, &reply); err != nil {
		return nil, err
	}
	return reply.Value, nil
}

// Delete removes the value stored under rawKey through addr.
func (c *Client) Delete(ctx context.Context, addr, rawKey string) error {
	req := &backup.RemoveRequest{RawKey: rawKey}
	return c.mgr.call(ctx, addr, backup.ServiceName+".Remove", req, &backup.RemoveReply{})
}

// Lookup asks addr which node the ring currently assigns rawKey to.
func (c *Client) Lookup(ctx context.Context, addr, rawKey string) (domain.NodeInfo, error) {
	req := &diag.LookupRequest{RawKey: rawKey}
	var reply diag.LookupReply
	if err := c.mgr.call(ctx, addr, diag.ServiceName+".Lookup", req, &reply); err != nil {
		return domain.NodeInfo{}, err
	}
	return reply.Owner, nil
}

// RoutingTable fetches a point-in-time snapshot of addr's ring view.
func (c *Client) RoutingTable(ctx context.Context, addr string) (*diag.RoutingTableReply, error) {
	var reply diag.RoutingTableReply
	if err := c.mgr.call(ctx, addr, diag.ServiceName+".RoutingTable", &diag.RoutingTableRequest{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}
