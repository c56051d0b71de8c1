package lookup

import (
	"context"
	"sync"
	"testing"
	"time"

	"chordring/internal/dispatcher"
	"chordring/internal/domain"
	"chordring/internal/ring"
	"chordring/internal/routingtable"

	"github.com/stretchr/testify/require"
)

// fakeSender records every sent operation and optionally runs a hook that
// simulates the network round trip (e.g. answering immediately as if the
// peer replied synchronously).
type fakeSender struct {
	mu   sync.Mutex
	sent []sentOp
	hook func(addr string, op dispatcher.Operation)
	fail map[string]bool
}

type sentOp struct {
	addr string
	op   dispatcher.Operation
}

func (s *fakeSender) Send(addr string, op dispatcher.Operation) error {
	s.mu.Lock()
	s.sent = append(s.sent, sentOp{addr, op})
	shouldFail := s.fail[addr]
	s.mu.Unlock()
	if shouldFail {
		return context.DeadlineExceeded
	}
	if s.hook != nil {
		s.hook(addr, op)
	}
	return nil
}

func newTestSpace(t *testing.T) ring.Space {
	t.Helper()
	sp, err := ring.NewSpace(8, 3)
	require.NoError(t, err)
	return sp
}

func nodeInfo(sp ring.Space, v uint64, addr string) domain.NodeInfo {
	return domain.NodeInfo{ID: sp.FromUint64(v), Addr: addr}
}

func TestLookupAnswersLocallyWhenKeyInOwnArc(t *testing.T) {
	sp := newTestSpace(t)
	self := nodeInfo(sp, 10, "n10")
	rt := routingtable.New(&self, sp)
	rt.UpdateSuccessors(nodeInfo(sp, 20, "n20"))

	send := &fakeSender{}
	e := New(self, rt, send, DefaultConfig(sp.Bits), nil)

	owner, err := e.Lookup(context.Background(), sp.FromUint64(15), "")
	require.NoError(t, err)
	require.Equal(t, "n20", owner.Addr)
	require.Empty(t, send.sent) // no network round trip needed
}

func TestLookupForwardsAndCompletesOnResult(t *testing.T) {
	sp := newTestSpace(t)
	self := nodeInfo(sp, 10, "n10")
	rt := routingtable.New(&self, sp)
	rt.UpdateFingerTable(nodeInfo(sp, 50, "n50")) // only remote node known

	send := &fakeSender{}
	e := New(self, rt, send, Config{MaxHops: 4, HopTimeout: time.Second}, nil)

	send.hook = func(addr string, op dispatcher.Operation) {
		lookupOp, ok := op.(*dispatcher.Lookup)
		require.True(t, ok)
		// Simulate the remote node resolving and replying directly.
		go e.HandleLookupResult(lookupOp.Key, nodeInfo(sp, 60, "n60"))
	}

	owner, err := e.Lookup(context.Background(), sp.FromUint64(55), "")
	require.NoError(t, err)
	require.Equal(t, "n60", owner.Addr)
}

func TestLookupDeduplicatesConcurrentCallers(t *testing.T) {
	sp := newTestSpace(t)
	self := nodeInfo(sp, 10, "n10")
	rt := routingtable.New(&self, sp)
	rt.UpdateFingerTable(nodeInfo(sp, 50, "n50"))

	send := &fakeSender{}
	e := New(self, rt, send, Config{MaxHops: 4, HopTimeout: 2 * time.Second}, nil)

	var wg sync.WaitGroup
	results := make([]domain.NodeInfo, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner, err := e.Lookup(context.Background(), sp.FromUint64(55), "")
			require.NoError(t, err)
			results[i] = owner
		}(i)
	}

	time.Sleep(20 * time.Millisecond) // let every caller join the same future
	send.mu.Lock()
	sentCount := len(send.sent)
	send.mu.Unlock()
	require.Equal(t, 1, sentCount, "only the first caller should send a Lookup message")

	e.HandleLookupResult(sp.FromUint64(55), nodeInfo(sp, 60, "n60"))
	wg.Wait()
	for _, r := range results {
		require.Equal(t, "n60", r.Addr)
	}
}

func TestLookupTimesOutWhenNoResultArrives(t *testing.T) {
	sp := newTestSpace(t)
	self := nodeInfo(sp, 10, "n10")
	rt := routingtable.New(&self, sp)
	rt.UpdateFingerTable(nodeInfo(sp, 50, "n50"))

	send := &fakeSender{} // hook left nil: nobody ever answers
	e := New(self, rt, send, Config{MaxHops: 1, HopTimeout: 10 * time.Millisecond}, nil)

	_, err := e.Lookup(context.Background(), sp.FromUint64(55), "")
	require.Error(t, err)
}

func TestHandleLookupForwardsToNextBestNode(t *testing.T) {
	sp := newTestSpace(t)
	self := nodeInfo(sp, 10, "n10")
	rt := routingtable.New(&self, sp)
	rt.UpdateFingerTable(nodeInfo(sp, 50, "n50"))

	send := &fakeSender{}
	e := New(self, rt, send, Config{MaxHops: 4, HopTimeout: time.Second}, nil)

	op := &dispatcher.Lookup{
		OriginInfo: nodeInfo(sp, 99, "origin"),
		Key:        sp.FromUint64(55),
		LastNode:   nodeInfo(sp, 99, "origin"),
		TimeToLive: 4,
	}
	e.HandleLookup(context.Background(), op)

	require.Len(t, send.sent, 1)
	require.Equal(t, "n50", send.sent[0].addr)
	fwd, ok := send.sent[0].op.(*dispatcher.Lookup)
	require.True(t, ok)
	require.Equal(t, 3, fwd.TimeToLive)
}

func TestHandleLookupTagsAndForwardsWhenSuccessorOwnsKey(t *testing.T) {
	sp := newTestSpace(t)
	self := nodeInfo(sp, 10, "n10")
	rt := routingtable.New(&self, sp)
	rt.UpdateSuccessors(nodeInfo(sp, 20, "n20"))

	send := &fakeSender{}
	e := New(self, rt, send, Config{MaxHops: 4, HopTimeout: time.Second}, nil)

	origin := nodeInfo(sp, 99, "origin")
	op := &dispatcher.Lookup{
		OriginInfo: origin,
		Key:        sp.FromUint64(15),
		LastNode:   origin,
		TimeToLive: 4,
	}
	e.HandleLookup(context.Background(), op)

	require.Len(t, send.sent, 1)
	require.Equal(t, "n20", send.sent[0].addr)
	fwd, ok := send.sent[0].op.(*dispatcher.Lookup)
	require.True(t, ok)
	require.True(t, fwd.ReachedDestination)
	require.Equal(t, 3, fwd.TimeToLive)

	// The routing table absorbed the origin's identity from step 7, even
	// though this hop forwarded rather than answered.
	pred := rt.GetPredecessor()
	require.NotNil(t, pred)
	require.Equal(t, "origin", pred.Addr)
}

func TestHandleLookupAnswersWhenAlreadyTaggedDestination(t *testing.T) {
	sp := newTestSpace(t)
	self := nodeInfo(sp, 20, "n20")
	rt := routingtable.New(&self, sp)

	send := &fakeSender{}
	e := New(self, rt, send, Config{MaxHops: 4, HopTimeout: time.Second}, nil)

	origin := nodeInfo(sp, 99, "origin")
	op := &dispatcher.Lookup{
		OriginInfo:         origin,
		Key:                sp.FromUint64(15),
		LastNode:           nodeInfo(sp, 10, "n10"),
		TimeToLive:         3,
		ReachedDestination: true,
	}
	e.HandleLookup(context.Background(), op)

	require.Len(t, send.sent, 1)
	require.Equal(t, "origin", send.sent[0].addr)
	result, ok := send.sent[0].op.(*dispatcher.LookupResult)
	require.True(t, ok)
	require.Equal(t, "n20", result.Responder.Addr)
}

func TestHandleLookupDropsExhaustedTTL(t *testing.T) {
	sp := newTestSpace(t)
	self := nodeInfo(sp, 10, "n10")
	rt := routingtable.New(&self, sp)

	send := &fakeSender{}
	e := New(self, rt, send, Config{MaxHops: 4, HopTimeout: time.Second}, nil)

	op := &dispatcher.Lookup{
		OriginInfo: nodeInfo(sp, 99, "origin"),
		Key:        sp.FromUint64(15),
		TimeToLive: 0,
	}
	e.HandleLookup(context.Background(), op)
	require.Empty(t, send.sent)
}
