package routingtable

import (
	"sort"

	"chordring/internal/domain"
	"chordring/internal/logger"
	"chordring/internal/ring"
)

// KeyBelongsToSuccessor reports whether key falls in the half-open arc
// (self, successor] where successor is successors[0], falling back to
// fingers[0] when no successor is known yet.
func (rt *RoutingTable) KeyBelongsToSuccessor(key ring.ID) bool {
	succ := rt.FirstSuccessor()
	if succ == nil {
		succ = rt.GetFinger(0)
	}
	if succ == nil {
		return false
	}
	return key.BetweenRightInclusive(rt.self.ID, succ.ID)
}

// NextBestNode scans the finger table from the farthest row to the nearest
// and returns the first finger strictly between self and key that is not
// self. If none qualifies it falls back to the known successor, else self.
func (rt *RoutingTable) NextBestNode(key ring.ID) domain.NodeInfo {
	for i := rt.NumFingers() - 1; i >= 0; i-- {
		f := rt.GetFinger(i)
		if f == nil || f.Equal(*rt.self) {
			continue
		}
		if f.ID.Between(rt.self.ID, key) {
			return *f
		}
	}
	if succ := rt.FirstSuccessor(); succ != nil {
		return *succ
	}
	return *rt.self
}

// UpdatePredecessor applies the standard acceptance rule: reject nil
// or self, accept unconditionally if no predecessor is known, otherwise
// accept only if n lies strictly between the current predecessor and self.
// Returns whether the predecessor actually changed.
func (rt *RoutingTable) UpdatePredecessor(n domain.NodeInfo) bool {
	if n.IsZero() || n.Equal(*rt.self) {
		return false
	}
	cur := rt.GetPredecessor()
	if cur == nil {
		rt.SetPredecessor(&n)
		return true
	}
	if cur.Equal(n) {
		return false
	}
	if n.ID.Between(cur.ID, rt.self.ID) {
		rt.SetPredecessor(&n)
		return true
	}
	return false
}

// UpdateSuccessors inserts n into the successor list at the position
// dictated by clockwise distance from self. Idempotent, and truncates to
// the configured list size by dropping the farthest entry.
func (rt *RoutingTable) UpdateSuccessors(n domain.NodeInfo) {
	if n.IsZero() || n.Equal(*rt.self) {
		return
	}
	cur := rt.SuccessorList()
	for _, s := range cur {
		if s.Equal(n) {
			return
		}
	}
	cur = append(cur, &n)
	sort.Slice(cur, func(i, j int) bool {
		return rt.space.Distance(rt.self.ID, cur[i].ID).Cmp(rt.space.Distance(rt.self.ID, cur[j].ID)) < 0
	})
	if len(cur) > rt.succListSize {
		cur = cur[:rt.succListSize]
	}
	padded := make([]*domain.NodeInfo, rt.succListSize)
	copy(padded, cur)
	rt.setSuccessorPointers(padded)
}

func (rt *RoutingTable) setSuccessorPointers(nodes []*domain.NodeInfo) {
	for i := 0; i < rt.succListSize; i++ {
		if i < len(nodes) {
			rt.SetSuccessor(i, derefOrNil(nodes[i]))
		} else {
			rt.SetSuccessor(i, nil)
		}
	}
}

func derefOrNil(n *domain.NodeInfo) *domain.NodeInfo {
	if n == nil {
		return nil
	}
	cp := *n
	return &cp
}

// UpdateFingerTable replaces fingers[i] with n wherever n lies in the
// clockwise arc (self+2^i, fingers[i]]. Replacement of index 0 also
// inserts n into the successor list.
func (rt *RoutingTable) UpdateFingerTable(n domain.NodeInfo) {
	if n.IsZero() || n.Equal(*rt.self) {
		return
	}
	for i := 0; i < rt.NumFingers(); i++ {
		k, err := rt.space.AddPow2(rt.self.ID, i)
		if err != nil {
			continue
		}
		cur := rt.GetFinger(i)
		curID := rt.self.ID
		if cur != nil {
			curID = cur.ID
		}
		if n.ID.BetweenRightInclusive(k, curID) {
			rt.SetFinger(i, &n)
			if i == 0 {
				rt.UpdateSuccessors(n)
			}
		}
	}
}

// InformExistence is the composite update run whenever a peer is observed
// alive: update_successors, update_finger_table, update_predecessor.
func (rt *RoutingTable) InformExistence(n domain.NodeInfo) {
	if n.IsZero() || n.Equal(*rt.self) {
		return
	}
	rt.UpdateSuccessors(n)
	rt.UpdateFingerTable(n)
	rt.UpdatePredecessor(n)
}

// InformFailure evicts n from the successor list and predecessor slot, and
// resets any finger slot pointing at n back to self. It reports whether
// the successor list needs refilling and which finger indices were reset,
// so the caller (the lookup engine, via the stabilizer) can issue repair
// lookups; routingtable itself never issues lookups.
func (rt *RoutingTable) InformFailure(n domain.NodeInfo) (needsSuccessorRefill bool, staleFingers []int) {
	cur := rt.SuccessorList()
	filtered := make([]*domain.NodeInfo, 0, len(cur))
	removed := false
	for _, s := range cur {
		if s.Equal(n) {
			removed = true
			continue
		}
		filtered = append(filtered, s)
	}
	if removed {
		padded := make([]*domain.NodeInfo, rt.succListSize)
		copy(padded, filtered)
		rt.setSuccessorPointers(padded)
	}
	needsSuccessorRefill = len(filtered) < rt.succListSize

	if pred := rt.GetPredecessor(); pred != nil && pred.Equal(n) {
		rt.SetPredecessor(nil)
	}

	for i := 0; i < rt.NumFingers(); i++ {
		if f := rt.GetFinger(i); f != nil && f.Equal(n) {
			rt.SetFinger(i, rt.self)
			staleFingers = append(staleFingers, i)
		}
	}
	rt.logger.Debug("InformFailure processed",
		logger.F("failed", n.Addr),
		logger.F("needsSuccessorRefill", needsSuccessorRefill),
		logger.F("staleFingers", staleFingers),
	)
	return needsSuccessorRefill, staleFingers
}
