package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"chordring/internal/domain"
	"chordring/internal/ring"

	"github.com/stretchr/testify/require"
)

// fakeLocal records every Handle* call the worker pool makes against it.
type fakeLocal struct {
	mu           sync.Mutex
	self         domain.NodeInfo
	notified     []domain.NodeInfo
	gotLookup    []*Lookup
	gotLookupRes []ring.ID
}

func (f *fakeLocal) Self() domain.NodeInfo { return f.self }
func (f *fakeLocal) HandleLookup(ctx context.Context, op *Lookup) {
	f.mu.Lock()
	f.gotLookup = append(f.gotLookup, op)
	f.mu.Unlock()
}
func (f *fakeLocal) HandleLookupResult(key ring.ID, responder domain.NodeInfo) {
	f.mu.Lock()
	f.gotLookupRes = append(f.gotLookupRes, key)
	f.mu.Unlock()
}
func (f *fakeLocal) HandleRequestPredecessor(ctx context.Context, origin domain.NodeInfo) {}
func (f *fakeLocal) HandlePredecessorResponse(responder domain.NodeInfo, predecessor *domain.NodeInfo) {
}
func (f *fakeLocal) HandleNotify(origin domain.NodeInfo) {
	f.mu.Lock()
	f.notified = append(f.notified, origin)
	f.mu.Unlock()
}

func TestWorkerPoolRunsQueuedOperations(t *testing.T) {
	sp := testSpace(t)
	self := domain.NodeInfo{ID: sp.FromUint64(1), Addr: "n1"}
	d := New(self, WithConfig(Config{WorkerPoolSize: 2, QueueSize: 4, DialTimeout: time.Second, SendTimeout: time.Second, IdleTTL: time.Minute}))
	local := &fakeLocal{self: self}
	d.SetLocal(local)

	d.wg.Add(1)
	go d.worker()
	defer close(d.stopCh)

	origin := domain.NodeInfo{ID: sp.FromUint64(2), Addr: "n2"}
	d.workQueue <- work{ctx: context.Background(), op: &Notify{OriginInfo: origin}}

	require.Eventually(t, func() bool {
		local.mu.Lock()
		defer local.mu.Unlock()
		return len(local.notified) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWorkerDropsOperationsUntilLocalAttached(t *testing.T) {
	sp := testSpace(t)
	self := domain.NodeInfo{ID: sp.FromUint64(1), Addr: "n1"}
	d := New(self)

	d.wg.Add(1)
	go d.worker()
	defer close(d.stopCh)

	origin := domain.NodeInfo{ID: sp.FromUint64(2), Addr: "n2"}
	d.workQueue <- work{ctx: context.Background(), op: &Notify{OriginInfo: origin}}
	time.Sleep(20 * time.Millisecond) // no local attached: must not panic, just drop

	local := &fakeLocal{self: self}
	d.SetLocal(local)
	d.workQueue <- work{ctx: context.Background(), op: &Notify{OriginInfo: origin}}

	require.Eventually(t, func() bool {
		local.mu.Lock()
		defer local.mu.Unlock()
		return len(local.notified) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRPCReceiverRejectsWhenQueueFull(t *testing.T) {
	sp := testSpace(t)
	self := domain.NodeInfo{ID: sp.FromUint64(1), Addr: "n1"}
	d := New(self, WithConfig(Config{WorkerPoolSize: 0, QueueSize: 1, DialTimeout: time.Second, SendTimeout: time.Second, IdleTTL: time.Minute}))
	// No workers started, so the one queue slot fills and stays full.
	d.workQueue <- work{ctx: context.Background(), op: &Notify{OriginInfo: self}}

	recv := &rpcReceiver{d: d}
	env, err := envelopeFor(&Notify{OriginInfo: self})
	require.NoError(t, err)

	var ack Ack
	require.NoError(t, recv.Handle(env, &ack))
	require.False(t, ack.OK)
}
