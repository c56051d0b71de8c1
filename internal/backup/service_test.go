package backup

import (
	"testing"

	"chordring/internal/domain"
	"chordring/internal/ring"
	"chordring/internal/routingtable"
	"chordring/internal/storage"

	"github.com/stretchr/testify/require"
)

func newTestSpace(t *testing.T) ring.Space {
	t.Helper()
	sp, err := ring.NewSpace(8, 3)
	require.NoError(t, err)
	return sp
}

func TestServiceStoreFetchRemoveRoundTrip(t *testing.T) {
	sp := newTestSpace(t)
	self := domain.NodeInfo{ID: sp.FromUint64(20), Addr: "n20"}
	rt := routingtable.New(&self, sp)
	pred := domain.NodeInfo{ID: sp.FromUint64(10), Addr: "n10"}
	rt.SetPredecessor(&pred)
	store := storage.NewMemoryStorage(nil)
	svc := NewService(rt, store, sp, nil)

	rawKey := "hello" // must hash into (predecessor, self]; we probe a few candidates
	var owned string
	for _, candidate := range []string{"hello", "world", "abc", "xyz", "key1", "key2"} {
		id := sp.NewIDFromString(candidate)
		if id.BetweenRightInclusive(pred.ID, self.ID) {
			owned = candidate
			break
		}
	}
	require.NotEmpty(t, owned, "test setup: need at least one key this node owns")
	rawKey = owned

	var storeReply StoreReply
	require.NoError(t, svc.Store(&StoreRequest{RawKey: rawKey, Value: []byte("v1")}, &storeReply))

	var fetchReply FetchReply
	require.NoError(t, svc.Fetch(&FetchRequest{RawKey: rawKey}, &fetchReply))
	require.Equal(t, []byte("v1"), fetchReply.Value)

	var removeReply RemoveReply
	require.NoError(t, svc.Remove(&RemoveRequest{RawKey: rawKey}, &removeReply))

	require.ErrorIs(t, svc.Fetch(&FetchRequest{RawKey: rawKey}, &fetchReply), storage.ErrNotFound)
}

func TestServiceRejectsUnownedKey(t *testing.T) {
	sp := newTestSpace(t)
	self := domain.NodeInfo{ID: sp.FromUint64(10), Addr: "n10"}
	rt := routingtable.New(&self, sp)
	rt.UpdateSuccessors(domain.NodeInfo{ID: sp.FromUint64(20), Addr: "n20"})
	store := storage.NewMemoryStorage(nil)
	svc := NewService(rt, store, sp, nil)

	// Find a raw key that hashes outside (self, successor].
	var unowned string
	for _, candidate := range []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8"} {
		id := sp.NewIDFromString(candidate)
		if !id.BetweenRightInclusive(self.ID, sp.FromUint64(20)) {
			unowned = candidate
			break
		}
	}
	require.NotEmpty(t, unowned, "test setup: need at least one key this node does not own")

	var reply StoreReply
	err := svc.Store(&StoreRequest{RawKey: unowned, Value: []byte("v1")}, &reply)
	require.ErrorIs(t, err, domain.ErrNotResponsible)
}
