// Package stabilizer runs the ring's periodic self-healing protocol: it
// verifies the successor pointer and absorbs newly-joined nodes between
// self and its successor, probes the predecessor for liveness, and fills
// empty finger table slots via lookups. All three sub-protocols run on a
// single fixed-delay loop so a slow round never overlaps the next.
package stabilizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chordring/internal/ctxutil"
	"chordring/internal/dispatcher"
	"chordring/internal/domain"
	"chordring/internal/logger"
	"chordring/internal/ring"
	"chordring/internal/routingtable"
)

// Sender is the subset of *dispatcher.Dispatcher the stabilizer needs.
type Sender interface {
	Send(addr string, op dispatcher.Operation) error
}

// Lookuper is the subset of *lookup.Engine the stabilizer needs to fill
// finger table entries.
type Lookuper interface {
	Lookup(ctx context.Context, key ring.ID, traceID string) (domain.NodeInfo, error)
}

// Config bounds the stabilizer's pacing and per-probe timeouts.
type Config struct {
	Interval           time.Duration
	PredecessorTimeout time.Duration
	FingerFillTimeout  time.Duration
	FillConcurrency    int
}

// DefaultConfig returns the reference pacing: a one-second tick and
// 400ms probe timeouts, with up to five concurrent finger fills per tick.
func DefaultConfig() Config {
	return Config{
		Interval:           time.Second,
		PredecessorTimeout: 400 * time.Millisecond,
		FingerFillTimeout:  400 * time.Millisecond,
		FillConcurrency:    5,
	}
}

type future struct {
	mu     sync.Mutex
	done   chan struct{}
	result *domain.NodeInfo
	closed bool
}

func newFuture() *future { return &future{done: make(chan struct{})} }

func (f *future) complete(pred *domain.NodeInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.result = pred
	f.closed = true
	close(f.done)
}

// Stabilizer runs the periodic maintenance loop against one node's
// routing table.
type Stabilizer struct {
	self   domain.NodeInfo
	rt     *routingtable.RoutingTable
	send   Sender
	lookup Lookuper
	cfg    Config
	logger logger.Logger

	mu      sync.Mutex
	pending map[string]*future // keyed by the probed node's address

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Stabilizer for self.
func New(self domain.NodeInfo, rt *routingtable.RoutingTable, send Sender, lookup Lookuper, cfg Config, lgr logger.Logger) *Stabilizer {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Stabilizer{
		self:    self,
		rt:      rt,
		send:    send,
		lookup:  lookup,
		cfg:     cfg,
		logger:  lgr,
		pending: make(map[string]*future),
	}
}

// Start launches the fixed-delay stabilization loop in a background
// goroutine. Calling Start twice without an intervening Stop is a
// programming error.
func (s *Stabilizer) Start() {
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.loop()
}

// Stop signals the loop to exit and waits for the current round, if any,
// to finish.
func (s *Stabilizer) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Stabilizer) loop() {
	defer s.wg.Done()
	for {
		s.Tick()
		select {
		case <-s.stopCh:
			return
		case <-time.After(s.cfg.Interval):
		}
	}
}

// Tick runs one round of all three sub-protocols in sequence; the
// background loop calls it once per interval.
func (s *Stabilizer) Tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Interval)
	defer cancel()
	s.stabilizeSuccessor(ctx)
	s.stabilizePredecessor(ctx)
	s.fillFingerTable(ctx)
}

// stabilizeSuccessor asks the current successor for its predecessor; if
// that predecessor lies strictly between self and the successor, a new
// node has joined the ring in between and becomes the new successor. It
// always finishes by notifying whichever node it now considers its
// successor, so that node can adopt self as its predecessor.
func (s *Stabilizer) stabilizeSuccessor(ctx context.Context) {
	succ := s.rt.FirstSuccessor()
	if succ == nil || succ.Equal(s.self) {
		return
	}

	pred, err := s.requestPredecessor(ctx, *succ)
	if err != nil {
		s.logger.Warn("stabilize_successor: successor unreachable",
			logger.F("successor", succ.Addr), logger.F("err", err.Error()))
		s.rt.InformFailure(*succ)
		return
	}
	if pred != nil && pred.ID.Between(s.self.ID, succ.ID) {
		s.rt.UpdateSuccessors(*pred)
		succ = pred
	}

	if err := s.send.Send(succ.Addr, &dispatcher.Notify{OriginInfo: s.self}); err != nil {
		s.logger.Warn("stabilize_successor: notify failed",
			logger.F("successor", succ.Addr), logger.F("err", err.Error()))
		s.rt.InformFailure(*succ)
	}
}

// stabilizePredecessor probes the predecessor by routing a lookup for its
// own id through the ring, rather than contacting it directly: a reply
// confirms both that the predecessor is alive and that the ring still
// agrees it owns that id. On success the returned node replaces the
// predecessor outright; on timeout or any other failure the predecessor is
// presumed dead and cleared, letting the next Notify from the true
// predecessor repopulate it.
func (s *Stabilizer) stabilizePredecessor(ctx context.Context) {
	pred := s.rt.GetPredecessor()
	if pred == nil || pred.Equal(s.self) {
		return
	}

	pctx, cancel := ctxutil.WithTimeout(ctx, s.cfg.PredecessorTimeout)
	defer cancel()
	found, err := s.lookup.Lookup(pctx, pred.ID, ctxutil.NewTraceID())
	if err != nil {
		s.logger.Warn("stabilize_predecessor: lookup(predecessor.id) failed, clearing",
			logger.F("predecessor", pred.Addr), logger.F("err", err.Error()))
		s.rt.InformFailure(*pred)
		return
	}
	s.rt.SetPredecessor(&found)
}

// fillFingerTable resolves every finger slot still pointing at self (i.e.
// never populated, or reset by a failure) via a lookup for self+2^i, up to
// FillConcurrency concurrent resolutions per tick.
func (s *Stabilizer) fillFingerTable(ctx context.Context) {
	space := s.rt.Space()
	sem := make(chan struct{}, s.cfg.FillConcurrency)
	var wg sync.WaitGroup

	for i := 0; i < s.rt.NumFingers(); i++ {
		cur := s.rt.GetFinger(i)
		if cur != nil && !cur.Equal(s.self) {
			continue
		}
		key, err := space.AddPow2(s.self.ID, i)
		if err != nil {
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(i int, key ring.ID) {
			defer wg.Done()
			defer func() { <-sem }()
			fctx, cancel := ctxutil.WithTimeout(ctx, s.cfg.FingerFillTimeout)
			defer cancel()
			found, err := s.lookup.Lookup(fctx, key, ctxutil.NewTraceID())
			if err != nil {
				s.logger.Debug("fill_finger_table: lookup failed",
					logger.F("index", i), logger.F("err", err.Error()))
				return
			}
			s.rt.SetFinger(i, &found)
			if i == 0 {
				s.rt.UpdateSuccessors(found)
			}
		}(i, key)
	}
	wg.Wait()
}

// FillFingerTable runs one round of finger resolution outside the regular
// schedule. Join calls this directly after adopting its successor, so the
// finger table is populated before the node ever forwards a Lookup, rather
// than waiting for the next periodic tick.
func (s *Stabilizer) FillFingerTable(ctx context.Context) {
	s.fillFingerTable(ctx)
}

// FetchPredecessor asks target for its predecessor directly, the same
// mechanism stabilize_successor uses, and returns the answer without
// touching the local routing table. Join calls this against its newly
// adopted successor to complete bootstrap's third step.
func (s *Stabilizer) FetchPredecessor(ctx context.Context, target domain.NodeInfo) (*domain.NodeInfo, error) {
	return s.requestPredecessor(ctx, target)
}

// requestPredecessor asks target for its predecessor and blocks until the
// matching PredecessorResponse arrives, the per-probe timeout elapses, or
// ctx is canceled. Concurrent probes of the same target share one
// in-flight request rather than issuing duplicates.
func (s *Stabilizer) requestPredecessor(ctx context.Context, target domain.NodeInfo) (*domain.NodeInfo, error) {
	s.mu.Lock()
	f, exists := s.pending[target.Addr]
	if !exists {
		f = newFuture()
		s.pending[target.Addr] = f
	}
	s.mu.Unlock()

	if !exists {
		if err := s.send.Send(target.Addr, &dispatcher.RequestPredecessor{OriginInfo: s.self}); err != nil {
			s.forgetPending(target.Addr, f)
			return nil, err
		}
	}

	select {
	case <-f.done:
		f.mu.Lock()
		result := f.result
		f.mu.Unlock()
		s.forgetPending(target.Addr, f)
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.cfg.PredecessorTimeout):
		s.forgetPending(target.Addr, f)
		return nil, fmt.Errorf("stabilizer: predecessor probe to %s timed out", target.Addr)
	}
}

func (s *Stabilizer) forgetPending(addr string, f *future) {
	s.mu.Lock()
	if cur, ok := s.pending[addr]; ok && cur == f {
		delete(s.pending, addr)
	}
	s.mu.Unlock()
}

// HandleRequestPredecessor answers a peer's probe with this node's current
// predecessor, which may be nil.
func (s *Stabilizer) HandleRequestPredecessor(ctx context.Context, origin domain.NodeInfo) {
	pred := s.rt.GetPredecessor()
	resp := &dispatcher.PredecessorResponse{OriginInfo: origin, Responder: s.self, Predecessor: pred}
	if err := s.send.Send(origin.Addr, resp); err != nil {
		s.logger.Warn("request_predecessor: failed to reply",
			logger.F("origin", origin.Addr), logger.F("err", err.Error()))
	}
}

// HandlePredecessorResponse completes the outstanding probe for responder,
// if one is pending. A response for a probe that already timed out is
// silently discarded.
func (s *Stabilizer) HandlePredecessorResponse(responder domain.NodeInfo, predecessor *domain.NodeInfo) {
	s.mu.Lock()
	f, ok := s.pending[responder.Addr]
	s.mu.Unlock()
	if !ok {
		return
	}
	f.complete(predecessor)
}

// HandleNotify runs update_predecessor against a peer claiming to be this
// node's predecessor.
func (s *Stabilizer) HandleNotify(origin domain.NodeInfo) {
	s.rt.UpdatePredecessor(origin)
}
