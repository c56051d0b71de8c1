// Package lookup resolves which node in the ring is responsible for a key.
// It issues Lookup messages that hop through peers via the dispatcher,
// deduplicates concurrent callers resolving the same key behind a single
// outstanding request, and completes the matching caller when the
// destination's LookupResult arrives.
package lookup

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"chordring/internal/dispatcher"
	"chordring/internal/domain"
	"chordring/internal/logger"
	"chordring/internal/ring"
	"chordring/internal/routingtable"
	"chordring/internal/telemetry/lookuptrace"
)

// Sender is the subset of *dispatcher.Dispatcher the engine needs; an
// interface here keeps lookup free of a direct dependency on net/rpc.
type Sender interface {
	Send(addr string, op dispatcher.Operation) error
}

// Config bounds how far a Lookup may travel and how long a caller waits.
type Config struct {
	MaxHops    int
	HopTimeout time.Duration
}

// DefaultConfig derives MaxHops from the ring's bit width, per the
// reference value of four times the finger table depth.
func DefaultConfig(bits int) Config {
	return Config{
		MaxHops:    4 * bits,
		HopTimeout: 2 * time.Second,
	}
}

// future is the completion handle shared by every caller resolving the
// same key concurrently; it closes exactly once, broadcasting to every
// waiter regardless of how many joined after the first Send.
type future struct {
	mu     sync.Mutex
	done   chan struct{}
	result domain.NodeInfo
	closed bool
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) complete(responder domain.NodeInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.result = responder
	f.closed = true
	close(f.done)
}

// Engine is a node's lookup front end: it owns no network state of its
// own beyond the table of outstanding per-key futures.
type Engine struct {
	self   domain.NodeInfo
	rt     *routingtable.RoutingTable
	send   Sender
	cfg    Config
	logger logger.Logger

	mu      sync.Mutex
	pending map[string]*future
}

// New builds an Engine for self, routing through rt and sending via send.
func New(self domain.NodeInfo, rt *routingtable.RoutingTable, send Sender, cfg Config, lgr logger.Logger) *Engine {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Engine{
		self:    self,
		rt:      rt,
		send:    send,
		cfg:     cfg,
		logger:  lgr,
		pending: make(map[string]*future),
	}
}

func futureKey(key ring.ID) string {
	return hex.EncodeToString(key)
}

// Lookup resolves the node responsible for key. If key already falls in
// this node's own (self, successor] arc it answers immediately; otherwise
// it forwards a Lookup message and blocks until the matching LookupResult
// arrives, a per-call timeout elapses, or ctx is canceled. Concurrent
// callers for the same key share the first caller's in-flight request.
func (e *Engine) Lookup(ctx context.Context, key ring.ID, traceID string) (domain.NodeInfo, error) {
	ctx, span := lookuptrace.StartLookupSpan(ctx, futureKey(key))
	defer span.End()

	if e.rt.KeyBelongsToSuccessor(key) {
		if succ := e.rt.FirstSuccessor(); succ != nil {
			return *succ, nil
		}
		return e.self, nil
	}
	return e.resolveVia(ctx, key, e.rt.NextBestNode(key), traceID)
}

// LookupVia resolves key by issuing the initial Lookup directly at via,
// bypassing both the local-arc fast path and this node's own routing
// table. It is used only while joining a ring: a node with an empty
// routing table must ask a known introducer rather than route through
// itself.
func (e *Engine) LookupVia(ctx context.Context, key ring.ID, via domain.NodeInfo, traceID string) (domain.NodeInfo, error) {
	return e.resolveVia(ctx, key, via, traceID)
}

func (e *Engine) resolveVia(ctx context.Context, key ring.ID, target domain.NodeInfo, traceID string) (domain.NodeInfo, error) {
	fk := futureKey(key)
	e.mu.Lock()
	f, exists := e.pending[fk]
	if !exists {
		f = newFuture()
		e.pending[fk] = f
	}
	e.mu.Unlock()

	if !exists {
		op := &dispatcher.Lookup{
			OriginInfo:         e.self,
			Key:                key,
			LastNode:           e.self,
			TimeToLive:         e.cfg.MaxHops,
			ReachedDestination: false,
			TraceID:            traceID,
		}
		if err := e.send.Send(target.Addr, op); err != nil {
			e.rt.InformFailure(target)
			e.forget(fk, f)
			return domain.NodeInfo{}, fmt.Errorf("lookup: send to %s: %w", target.Addr, err)
		}
	}

	timeout := e.cfg.HopTimeout * time.Duration(e.cfg.MaxHops)
	select {
	case <-f.done:
		f.mu.Lock()
		result := f.result
		f.mu.Unlock()
		e.forget(fk, f)
		return result, nil
	case <-ctx.Done():
		return domain.NodeInfo{}, ctx.Err()
	case <-time.After(timeout):
		e.forget(fk, f)
		return domain.NodeInfo{}, fmt.Errorf("lookup: timed out resolving key %s after %s", fk, timeout)
	}
}

func (e *Engine) forget(fk string, f *future) {
	e.mu.Lock()
	if cur, ok := e.pending[fk]; ok && cur == f {
		delete(e.pending, fk)
	}
	e.mu.Unlock()
}

// HandleLookup runs the per-hop algorithm against an inbound Lookup: a
// message already tagged ReachedDestination is answered with this node's
// own identity without recomputing anything; otherwise the hop recomputes
// KeyBelongsToSuccessor, tags the message if it now holds, and forwards to
// the next best node with the time-to-live decremented by one. Every hop,
// whether answering or forwarding, spreads membership information about
// the origin and the previous hop into the local routing table.
func (e *Engine) HandleLookup(ctx context.Context, op *dispatcher.Lookup) {
	op.TimeToLive--
	if op.TimeToLive < 0 {
		e.logger.Warn("lookup: dropping message, ttl exhausted",
			logger.F("key", futureKey(op.Key)), logger.F("trace_id", op.TraceID))
		return
	}

	previousLastNode := op.LastNode
	op.LastNode = e.self

	if op.ReachedDestination {
		e.finish(op, e.self)
		e.rt.InformExistence(op.OriginInfo)
		return
	}

	op.ReachedDestination = e.rt.KeyBelongsToSuccessor(op.Key)

	next := e.rt.NextBestNode(op.Key)
	if next.Equal(e.self) {
		if succ := e.rt.FirstSuccessor(); succ != nil {
			next = *succ
		}
	}

	if err := e.send.Send(next.Addr, op); err != nil {
		e.rt.InformFailure(next)
		e.logger.Warn("lookup: forward failed, informing routing table",
			logger.F("next", next.Addr), logger.F("err", err.Error()))
	}

	e.rt.InformExistence(op.OriginInfo)
	e.rt.InformExistence(previousLastNode)
}

// finish answers a Lookup whose destination has been reached: responder is
// always this node's own identity, since only the node that holds (or owns,
// per ReachedDestination) the key ever calls finish.
func (e *Engine) finish(op *dispatcher.Lookup, responder domain.NodeInfo) {
	if op.OriginInfo.Equal(e.self) {
		e.HandleLookupResult(op.Key, responder)
		return
	}
	result := &dispatcher.LookupResult{
		OriginInfo: op.OriginInfo,
		Responder:  responder,
		Key:        op.Key,
	}
	if err := e.send.Send(op.OriginInfo.Addr, result); err != nil {
		e.logger.Warn("lookup: failed to return result to origin",
			logger.F("origin", op.OriginInfo.Addr), logger.F("err", err.Error()))
	}
}

// HandleLookupResult runs on_lookup_finished: inform the routing table
// about the resolved node, then complete the outstanding future for key, if
// any. Results for keys nobody is waiting on (the caller already timed out)
// are silently discarded.
func (e *Engine) HandleLookupResult(key ring.ID, responder domain.NodeInfo) {
	e.rt.InformExistence(responder)

	fk := futureKey(key)
	e.mu.Lock()
	f, ok := e.pending[fk]
	e.mu.Unlock()
	if !ok {
		return
	}
	f.complete(responder)
}
