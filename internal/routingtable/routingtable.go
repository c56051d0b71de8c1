// Package routingtable holds a node's view of the ring: its predecessor,
// its m-entry finger table, and its bounded successor list. It is the only
// mutable state shared between the dispatcher's inbound workers and the
// stabilizer; every entry is independently synchronized so readers never
// block behind an unrelated slot's writer.
package routingtable

import (
	"fmt"
	"sync"

	"chordring/internal/domain"
	"chordring/internal/logger"
	"chordring/internal/ring"
)

// routingEntry holds one NodeInfo pointer behind its own RWMutex, so
// concurrent slot-level access never contends across slots.
type routingEntry struct {
	node *domain.NodeInfo
	mu   sync.RWMutex
}

// RoutingTable is a node's Chord ring state: predecessor, finger table, and
// successor list. It is owned by a single node (self) and mutated by the
// stabilizer and by inbound routing operations.
type RoutingTable struct {
	logger        logger.Logger
	space         ring.Space
	self          *domain.NodeInfo
	successorList []*routingEntry // R entries, clockwise order from self
	succListSize  int
	predecessor   *routingEntry
	fingers       []*routingEntry // m entries, fingers[i] ~ successor of self+2^i
}

// New creates a RoutingTable for self in the given identifier space, in
// the single-node-ring state: the predecessor and every finger point at
// self, and the successor list is empty.
func New(self *domain.NodeInfo, space ring.Space, opts ...Option) *RoutingTable {
	rt := &RoutingTable{
		self:          self,
		space:         space,
		successorList: make([]*routingEntry, space.SuccListSize),
		succListSize:  space.SuccListSize,
		predecessor:   &routingEntry{},
		fingers:       make([]*routingEntry, space.Bits),
		logger:        &logger.NopLogger{},
	}
	for i := range rt.successorList {
		rt.successorList[i] = &routingEntry{}
	}
	for i := range rt.fingers {
		rt.fingers[i] = &routingEntry{node: self}
	}
	rt.predecessor = &routingEntry{node: self}
	for _, opt := range opts {
		opt(rt)
	}
	rt.logger.Debug("routing table initialized")
	return rt
}

// InitSingleNode is a no-op kept for call-site clarity: New already leaves
// the table in the single-node-ring state (predecessor and every finger
// pointing at self, successor list empty). Call it when a node decides to
// found a new ring instead of joining one, to make that decision explicit
// at the call site.
func (rt *RoutingTable) InitSingleNode() {
	rt.logger.Debug("routing table confirmed as single-node ring")
}

// Space returns the identifier space this table was built for.
func (rt *RoutingTable) Space() ring.Space { return rt.space }

// Self returns the local node owning this routing table.
func (rt *RoutingTable) Self() *domain.NodeInfo { return rt.self }

// SuccListSize returns the configured successor list length R.
func (rt *RoutingTable) SuccListSize() int { return rt.succListSize }

// GetSuccessor returns the i-th successor, or nil if unset or out of range.
func (rt *RoutingTable) GetSuccessor(i int) *domain.NodeInfo {
	if i < 0 || i >= len(rt.successorList) {
		rt.logger.Warn("GetSuccessor: index out of range",
			logger.F("requested", i), logger.F("valid_range", fmt.Sprintf("[0..%d]", len(rt.successorList)-1)))
		return nil
	}
	entry := rt.successorList[i]
	entry.mu.RLock()
	node := entry.node
	entry.mu.RUnlock()
	return node
}

// FirstSuccessor is GetSuccessor(0), the authoritative successor pointer.
func (rt *RoutingTable) FirstSuccessor() *domain.NodeInfo {
	return rt.GetSuccessor(0)
}

// SetSuccessor overwrites the i-th successor slot.
func (rt *RoutingTable) SetSuccessor(i int, node *domain.NodeInfo) {
	if i < 0 || i >= len(rt.successorList) {
		rt.logger.Warn("SetSuccessor: index out of range",
			logger.F("requested", i), logger.F("valid_range", fmt.Sprintf("[0..%d]", len(rt.successorList)-1)))
		return
	}
	entry := rt.successorList[i]
	entry.mu.Lock()
	entry.node = node
	entry.mu.Unlock()
	rt.logger.Debug("SetSuccessor", logger.F("index", i), logger.FNode("successor", node))
}

// SuccessorList returns the non-nil successors currently known, in order.
// Callers get a shallow copy and may modify it freely.
func (rt *RoutingTable) SuccessorList() []*domain.NodeInfo {
	out := make([]*domain.NodeInfo, 0, len(rt.successorList))
	for _, entry := range rt.successorList {
		entry.mu.RLock()
		node := entry.node
		entry.mu.RUnlock()
		if node != nil {
			out = append(out, node)
		}
	}
	return out
}

// SetSuccessorList replaces the whole successor list. nodes must have
// exactly len(rt.successorList) elements; shorter lists should be
// right-padded with nil by the caller.
func (rt *RoutingTable) SetSuccessorList(nodes []*domain.NodeInfo) {
	if len(nodes) != len(rt.successorList) {
		rt.logger.Warn("SetSuccessorList: length mismatch",
			logger.F("expected", len(rt.successorList)), logger.F("got", len(nodes)))
		return
	}
	for i, node := range nodes {
		rt.SetSuccessor(i, node)
	}
}

// PromoteCandidate promotes successorList[i] to index 0, shifting later
// entries forward and discarding earlier ones; used when the authoritative
// successor is declared failed and a later entry takes its place.
func (rt *RoutingTable) PromoteCandidate(i int) {
	if i <= 0 || i >= rt.succListSize {
		rt.logger.Warn("PromoteCandidate: invalid index",
			logger.F("requested", i), logger.F("valid_range", fmt.Sprintf("[1..%d]", rt.succListSize-1)))
		return
	}
	candidate := rt.GetSuccessor(i)
	if candidate == nil {
		rt.logger.Warn("PromoteCandidate: candidate is nil", logger.F("index", i))
		return
	}
	newList := make([]*domain.NodeInfo, 0, rt.succListSize)
	newList = append(newList, candidate)
	for j := i + 1; j < rt.succListSize; j++ {
		if succ := rt.GetSuccessor(j); succ != nil {
			newList = append(newList, succ)
		}
	}
	for len(newList) < rt.succListSize {
		newList = append(newList, nil)
	}
	rt.SetSuccessorList(newList)
	rt.logger.Debug("PromoteCandidate: successor promoted",
		logger.F("from_index", i), logger.FNode("candidate", candidate))
}

// GetPredecessor returns the current predecessor, or nil once it has been
// declared failed. A node that has never learned one reports itself.
func (rt *RoutingTable) GetPredecessor() *domain.NodeInfo {
	rt.predecessor.mu.RLock()
	node := rt.predecessor.node
	rt.predecessor.mu.RUnlock()
	return node
}

// SetPredecessor overwrites the predecessor pointer unconditionally; callers
// enforce the update_predecessor acceptance rule before calling this.
func (rt *RoutingTable) SetPredecessor(node *domain.NodeInfo) {
	rt.predecessor.mu.Lock()
	rt.predecessor.node = node
	rt.predecessor.mu.Unlock()
	rt.logger.Debug("SetPredecessor", logger.FNode("predecessor", node))
}

// GetFinger returns finger table slot i, or nil if unset or out of range.
func (rt *RoutingTable) GetFinger(i int) *domain.NodeInfo {
	if i < 0 || i >= len(rt.fingers) {
		rt.logger.Warn("GetFinger: index out of range",
			logger.F("requested", i), logger.F("valid_range", fmt.Sprintf("[0..%d]", len(rt.fingers)-1)))
		return nil
	}
	entry := rt.fingers[i]
	entry.mu.RLock()
	node := entry.node
	entry.mu.RUnlock()
	return node
}

// SetFinger overwrites finger table slot i.
func (rt *RoutingTable) SetFinger(i int, node *domain.NodeInfo) {
	if i < 0 || i >= len(rt.fingers) {
		rt.logger.Warn("SetFinger: index out of range",
			logger.F("requested", i), logger.F("valid_range", fmt.Sprintf("[0..%d]", len(rt.fingers)-1)))
		return
	}
	entry := rt.fingers[i]
	entry.mu.Lock()
	entry.node = node
	entry.mu.Unlock()
	rt.logger.Debug("SetFinger", logger.F("index", i), logger.FNode("node", node))
}

// NumFingers returns m, the number of finger table rows.
func (rt *RoutingTable) NumFingers() int { return len(rt.fingers) }

// FingerList returns every finger slot including nils, indexed by position;
// used for debug inspection.
func (rt *RoutingTable) FingerList() []*domain.NodeInfo {
	out := make([]*domain.NodeInfo, len(rt.fingers))
	for i, entry := range rt.fingers {
		entry.mu.RLock()
		out[i] = entry.node
		entry.mu.RUnlock()
	}
	return out
}

// DebugLog emits a single compact snapshot of the whole table, bypassing
// the public getters' own per-call debug logs.
func (rt *RoutingTable) DebugLog() {
	self := rt.self

	rt.predecessor.mu.RLock()
	pred := rt.predecessor.node
	rt.predecessor.mu.RUnlock()

	successors := make([]map[string]any, 0, len(rt.successorList))
	for i, entry := range rt.successorList {
		entry.mu.RLock()
		node := entry.node
		entry.mu.RUnlock()
		successors = append(successors, nodeSnapshot(i, node))
	}

	fingers := make([]map[string]any, 0, len(rt.fingers))
	for i, entry := range rt.fingers {
		entry.mu.RLock()
		node := entry.node
		entry.mu.RUnlock()
		fingers = append(fingers, nodeSnapshot(i, node))
	}

	rt.logger.Debug("RoutingTable snapshot",
		logger.FNode("self", self),
		logger.FNode("predecessor", pred),
		logger.F("successors", successors),
		logger.F("fingers", fingers),
	)
}

func nodeSnapshot(index int, n *domain.NodeInfo) map[string]any {
	if n == nil {
		return map[string]any{"index": index, "node": nil}
	}
	return map[string]any{"index": index, "id": n.ID.ToHexString(false), "addr": n.Addr}
}
