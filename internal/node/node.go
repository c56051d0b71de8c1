// Package node aggregates one ring participant's components — routing
// table, dispatcher, lookup engine, stabilizer, and storage — into the
// LocalNode surface the dispatcher runs inbound operations against.
package node

import (
	"context"
	"fmt"

	"chordring/internal/ctxutil"
	"chordring/internal/dispatcher"
	"chordring/internal/domain"
	"chordring/internal/logger"
	"chordring/internal/lookup"
	"chordring/internal/ring"
	"chordring/internal/routingtable"
	"chordring/internal/stabilizer"
	"chordring/internal/storage"
)

// Node owns a routing table and drives the lookup engine and stabilizer
// against it; it is the concrete dispatcher.LocalNode for this process.
type Node struct {
	self   domain.NodeInfo
	space  ring.Space
	rt     *routingtable.RoutingTable
	disp   *dispatcher.Dispatcher
	lookup *lookup.Engine
	stab   *stabilizer.Stabilizer
	store  storage.Storage
	logger logger.Logger
}

// Option customizes a Node at construction time.
type Option func(*Node)

// WithLogger sets the node's own logger; it does not affect the loggers
// of the routing table, lookup engine, or stabilizer, which are
// configured independently where those components are built.
func WithLogger(l logger.Logger) Option {
	return func(n *Node) {
		if l != nil {
			n.logger = l
		}
	}
}

// New builds a Node for self, wiring a fresh lookup engine and stabilizer
// against rt, disp, and store. The dispatcher's local target must still be
// attached by the caller via disp.SetLocal(node).
func New(
	self domain.NodeInfo,
	space ring.Space,
	rt *routingtable.RoutingTable,
	disp *dispatcher.Dispatcher,
	store storage.Storage,
	lookupCfg lookup.Config,
	stabCfg stabilizer.Config,
	lgr logger.Logger,
	opts ...Option,
) *Node {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	engine := lookup.New(self, rt, disp, lookupCfg, lgr.Named("lookup"))
	stab := stabilizer.New(self, rt, disp, engine, stabCfg, lgr.Named("stabilizer"))

	n := &Node{
		self:   self,
		space:  space,
		rt:     rt,
		disp:   disp,
		lookup: engine,
		stab:   stab,
		store:  store,
		logger: lgr,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Self returns this node's identity.
func (n *Node) Self() domain.NodeInfo { return n.self }

// RoutingTable returns the node's routing table, for debug inspection and
// tests.
func (n *Node) RoutingTable() *routingtable.RoutingTable { return n.rt }

// Storage returns the node's local resource store.
func (n *Node) Storage() storage.Storage { return n.store }

// Lookup resolves the node responsible for key on the current ring view —
// the core-facing `route` interface the diag service's lookup calls through.
func (n *Node) Lookup(ctx context.Context, key ring.ID) (domain.NodeInfo, error) {
	return n.lookup.Lookup(ctx, key, ctxutil.NewTraceID())
}

// Send delivers an arbitrary routing operation to target — the
// core-facing `send` interface.
func (n *Node) Send(target string, op dispatcher.Operation) error {
	return n.disp.Send(target, op)
}

// Join runs the three-step bootstrap protocol against introducer: look up
// (self.id+1) mod M to learn this node's successor, fill the finger table
// against the now-reachable ring, then fetch the successor's predecessor
// and adopt it directly, instead of waiting for a stabilization round to
// discover it indirectly via Notify. A node founding a new ring never
// calls Join — New already leaves the routing table in the
// single-node-ring state.
func (n *Node) Join(ctx context.Context, introducer domain.NodeInfo) error {
	successorKey, err := n.space.AddMod(n.self.ID, n.space.FromUint64(1))
	if err != nil {
		return fmt.Errorf("node: join via %s: compute successor key: %w", introducer.Addr, err)
	}

	succ, err := n.lookup.LookupVia(ctx, successorKey, introducer, ctxutil.NewTraceID())
	if err != nil {
		return fmt.Errorf("node: join via %s: %w", introducer.Addr, err)
	}
	n.rt.UpdateSuccessors(succ)

	n.stab.FillFingerTable(ctx)

	if !succ.Equal(n.self) {
		pred, err := n.stab.FetchPredecessor(ctx, succ)
		if err != nil {
			n.logger.Warn("join: failed to fetch successor's predecessor",
				logger.F("successor", succ.Addr), logger.F("err", err.Error()))
		} else if pred != nil {
			n.rt.UpdatePredecessor(*pred)
		}
	}

	n.logger.Info("joined ring",
		logger.F("introducer", introducer.Addr), logger.FNode("successor", &succ))
	return nil
}

// StartStabilization launches the periodic maintenance loop.
func (n *Node) StartStabilization() {
	n.stab.Start()
}

// StopStabilization halts the periodic maintenance loop and waits for any
// in-flight round to finish.
func (n *Node) StopStabilization() {
	n.stab.Stop()
}

// The following methods implement dispatcher.LocalNode, letting the
// dispatcher run inbound operations against this node without importing
// internal/node itself.

func (n *Node) HandleLookup(ctx context.Context, op *dispatcher.Lookup) {
	n.lookup.HandleLookup(ctx, op)
}

func (n *Node) HandleLookupResult(key ring.ID, responder domain.NodeInfo) {
	n.lookup.HandleLookupResult(key, responder)
}

func (n *Node) HandleRequestPredecessor(ctx context.Context, origin domain.NodeInfo) {
	n.stab.HandleRequestPredecessor(ctx, origin)
}

func (n *Node) HandlePredecessorResponse(responder domain.NodeInfo, predecessor *domain.NodeInfo) {
	n.stab.HandlePredecessorResponse(responder, predecessor)
}

func (n *Node) HandleNotify(origin domain.NodeInfo) {
	n.stab.HandleNotify(origin)
}
