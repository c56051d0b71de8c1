package stabilizer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"chordring/internal/dispatcher"
	"chordring/internal/domain"
	"chordring/internal/ring"
	"chordring/internal/routingtable"

	"github.com/stretchr/testify/require"
)

// fakeSender records every sent operation and optionally runs a hook to
// simulate the peer's reply arriving back through the stabilizer's own
// Handle* methods.
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
		return fmt.Errorf("fakeSender: send to %s failed", addr)
	}
	if s.hook != nil {
		s.hook(addr, op)
	}
	return nil
}

// fakeLookuper answers every Lookup with a fixed result, or an error for
// addresses configured to fail.
type fakeLookuper struct {
	result domain.NodeInfo
	err    error
	calls  int
	mu     sync.Mutex
}

func (l *fakeLookuper) Lookup(ctx context.Context, key ring.ID, traceID string) (domain.NodeInfo, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	if l.err != nil {
		return domain.NodeInfo{}, l.err
	}
	return l.result, nil
}

func newTestSpace(t *testing.T) ring.Space {
	t.Helper()
	sp, err := ring.NewSpace(8, 3)
	require.NoError(t, err)
	return sp
}

func node(sp ring.Space, v uint64, addr string) domain.NodeInfo {
	return domain.NodeInfo{ID: sp.FromUint64(v), Addr: addr}
}

func testConfig() Config {
	return Config{
		Interval:           time.Second,
		PredecessorTimeout: 100 * time.Millisecond,
		FingerFillTimeout:  100 * time.Millisecond,
		FillConcurrency:    4,
	}
}

func TestStabilizeSuccessorAdoptsCloserPredecessor(t *testing.T) {
	sp := newTestSpace(t)
	self := node(sp, 10, "n10")
	rt := routingtable.New(&self, sp)
	rt.UpdateSuccessors(node(sp, 50, "n50"))

	send := &fakeSender{}
	s := New(self, rt, send, &fakeLookuper{}, testConfig(), nil)

	joined := node(sp, 30, "n30")
	send.hook = func(addr string, op dispatcher.Operation) {
		if _, ok := op.(*dispatcher.RequestPredecessor); ok {
			go s.HandlePredecessorResponse(node(sp, 50, "n50"), &joined)
		}
	}

	s.stabilizeSuccessor(context.Background())

	require.True(t, rt.FirstSuccessor().Equal(joined))
	// The last send must be a Notify to the newly adopted successor.
	last := send.sent[len(send.sent)-1]
	require.Equal(t, "n30", last.addr)
	_, ok := last.op.(*dispatcher.Notify)
	require.True(t, ok)
}

func TestStabilizeSuccessorHandlesUnreachablePeer(t *testing.T) {
	sp := newTestSpace(t)
	self := node(sp, 10, "n10")
	rt := routingtable.New(&self, sp)
	succ := node(sp, 50, "n50")
	rt.UpdateSuccessors(succ)

	send := &fakeSender{fail: map[string]bool{"n50": true}}
	s := New(self, rt, send, &fakeLookuper{}, testConfig(), nil)

	s.stabilizeSuccessor(context.Background())

	for _, remaining := range rt.SuccessorList() {
		require.False(t, remaining.Equal(succ))
	}
}

func TestStabilizePredecessorClearsOnLookupFailure(t *testing.T) {
	sp := newTestSpace(t)
	self := node(sp, 10, "n10")
	rt := routingtable.New(&self, sp)
	pred := node(sp, 5, "n5")
	rt.SetPredecessor(&pred)

	lk := &fakeLookuper{err: fmt.Errorf("key not found")}
	s := New(self, rt, &fakeSender{}, lk, testConfig(), nil)

	s.stabilizePredecessor(context.Background())

	require.Nil(t, rt.GetPredecessor())
	require.Equal(t, 1, lk.calls)
}

func TestStabilizePredecessorAdoptsLookupResult(t *testing.T) {
	sp := newTestSpace(t)
	self := node(sp, 10, "n10")
	rt := routingtable.New(&self, sp)
	pred := node(sp, 5, "n5")
	rt.SetPredecessor(&pred)

	resolved := node(sp, 5, "n5-resolved")
	lk := &fakeLookuper{result: resolved}
	s := New(self, rt, &fakeSender{}, lk, testConfig(), nil)

	s.stabilizePredecessor(context.Background())

	require.True(t, rt.GetPredecessor().Equal(resolved))
}

func TestFillFingerTableResolvesEmptySlots(t *testing.T) {
	sp := newTestSpace(t)
	self := node(sp, 10, "n10")
	rt := routingtable.New(&self, sp)

	found := node(sp, 77, "n77")
	lk := &fakeLookuper{result: found}
	s := New(self, rt, &fakeSender{}, lk, testConfig(), nil)

	s.fillFingerTable(context.Background())

	for i := 0; i < rt.NumFingers(); i++ {
		require.True(t, rt.GetFinger(i).Equal(found))
	}
	require.True(t, rt.FirstSuccessor().Equal(found))
	require.Equal(t, rt.NumFingers(), lk.calls)
}

func TestFillFingerTableSkipsAlreadyPopulatedSlots(t *testing.T) {
	sp := newTestSpace(t)
	self := node(sp, 10, "n10")
	rt := routingtable.New(&self, sp)
	existing := node(sp, 99, "n99")
	rt.SetFinger(0, &existing)

	lk := &fakeLookuper{result: node(sp, 77, "n77")}
	s := New(self, rt, &fakeSender{}, lk, testConfig(), nil)

	s.fillFingerTable(context.Background())

	require.True(t, rt.GetFinger(0).Equal(existing))
	require.Equal(t, rt.NumFingers()-1, lk.calls)
}

func TestRequestPredecessorDeduplicatesConcurrentProbes(t *testing.T) {
	sp := newTestSpace(t)
	self := node(sp, 10, "n10")
	rt := routingtable.New(&self, sp)

	send := &fakeSender{}
	s := New(self, rt, send, &fakeLookuper{}, testConfig(), nil)

	target := node(sp, 50, "n50")
	answer := node(sp, 30, "n30")

	var wg sync.WaitGroup
	results := make([]*domain.NodeInfo, 3)
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := s.requestPredecessor(context.Background(), target)
			results[i] = r
			errs[i] = err
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	send.mu.Lock()
	sentCount := len(send.sent)
	send.mu.Unlock()
	require.Equal(t, 1, sentCount, "concurrent probes of the same target share one in-flight request")

	s.HandlePredecessorResponse(target, &answer)
	wg.Wait()

	for i := 0; i < 3; i++ {
		require.NoError(t, errs[i])
		require.True(t, results[i].Equal(answer))
	}
}

func TestRequestPredecessorTimesOut(t *testing.T) {
	sp := newTestSpace(t)
	self := node(sp, 10, "n10")
	rt := routingtable.New(&self, sp)

	cfg := testConfig()
	cfg.PredecessorTimeout = 10 * time.Millisecond
	send := &fakeSender{} // nobody ever answers
	s := New(self, rt, send, &fakeLookuper{}, cfg, nil)

	_, err := s.requestPredecessor(context.Background(), node(sp, 50, "n50"))
	require.Error(t, err)
}

func TestFetchPredecessorReturnsRemoteAnswer(t *testing.T) {
	sp := newTestSpace(t)
	self := node(sp, 10, "n10")
	rt := routingtable.New(&self, sp)

	send := &fakeSender{}
	s := New(self, rt, send, &fakeLookuper{}, testConfig(), nil)

	target := node(sp, 50, "n50")
	answer := node(sp, 30, "n30")
	send.hook = func(addr string, op dispatcher.Operation) {
		if _, ok := op.(*dispatcher.RequestPredecessor); ok {
			go s.HandlePredecessorResponse(target, &answer)
		}
	}

	got, err := s.FetchPredecessor(context.Background(), target)
	require.NoError(t, err)
	require.True(t, got.Equal(answer))
}

func TestFillFingerTableExportedWrapperDelegates(t *testing.T) {
	sp := newTestSpace(t)
	self := node(sp, 10, "n10")
	rt := routingtable.New(&self, sp)

	found := node(sp, 77, "n77")
	lk := &fakeLookuper{result: found}
	s := New(self, rt, &fakeSender{}, lk, testConfig(), nil)

	s.FillFingerTable(context.Background())

	require.True(t, rt.GetFinger(0).Equal(found))
}

func TestHandleNotifyUpdatesPredecessor(t *testing.T) {
	sp := newTestSpace(t)
	self := node(sp, 10, "n10")
	rt := routingtable.New(&self, sp)

	s := New(self, rt, &fakeSender{}, &fakeLookuper{}, testConfig(), nil)
	origin := node(sp, 5, "n5")
	s.HandleNotify(origin)

	require.True(t, rt.GetPredecessor().Equal(origin))
}

func TestHandleRequestPredecessorReplies(t *testing.T) {
	sp := newTestSpace(t)
	self := node(sp, 10, "n10")
	rt := routingtable.New(&self, sp)
	pred := node(sp, 5, "n5")
	rt.SetPredecessor(&pred)

	send := &fakeSender{}
	s := New(self, rt, send, &fakeLookuper{}, testConfig(), nil)

	origin := node(sp, 99, "origin")
	s.HandleRequestPredecessor(context.Background(), origin)

	require.Len(t, send.sent, 1)
	require.Equal(t, "origin", send.sent[0].addr)
	resp, ok := send.sent[0].op.(*dispatcher.PredecessorResponse)
	require.True(t, ok)
	require.True(t, resp.Predecessor.Equal(pred))
}
