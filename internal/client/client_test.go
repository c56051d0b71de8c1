package client

import (
	"context"
	"net"
	"net/rpc"
	"testing"
	"time"

	"chordring/internal/backup"
	"chordring/internal/diag"
	"chordring/internal/domain"
	"chordring/internal/ring"

	"github.com/stretchr/testify/require"
)

// stubBackup implements the same RPC surface as backup.Service, backed by
// an in-memory map, so Client can be exercised without a full ring node.
type stubBackup struct {
	values map[string][]byte
}

func (s *stubBackup) Store(req *backup.StoreRequest, reply *backup.StoreReply) error {
	s.values[req.RawKey] = req.Value
	return nil
}
func (s *stubBackup) Fetch(req *backup.FetchRequest, reply *backup.FetchReply) error {
	reply.Value = s.values[req.RawKey]
	return nil
}
func (s *stubBackup) Remove(req *backup.RemoveRequest, reply *backup.RemoveReply) error {
	delete(s.values, req.RawKey)
	return nil
}

type stubDiag struct {
	owner domain.NodeInfo
	rt    diag.RoutingTableReply
}

func (s *stubDiag) Lookup(req *diag.LookupRequest, reply *diag.LookupReply) error {
	reply.Owner = s.owner
	return nil
}
func (s *stubDiag) RoutingTable(req *diag.RoutingTableRequest, reply *diag.RoutingTableReply) error {
	*reply = s.rt
	return nil
}

func startStubServer(t *testing.T, backend *stubBackup, diagBackend *stubDiag) string {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName(backup.ServiceName, backend))
	require.NoError(t, server.RegisterName(diag.ServiceName, diagBackend))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			go server.ServeConn(conn)
		}
	}()
	t.Cleanup(func() { _ = lis.Close() })
	return lis.Addr().String()
}

func TestClientPutGetDeleteRoundTrip(t *testing.T) {
	backend := &stubBackup{values: make(map[string][]byte)}
	addr := startStubServer(t, backend, &stubDiag{})

	mgr := New(time.Second, 0)
	defer mgr.Close()
	c := NewClient(mgr)

	ctx := context.Background()
	require.NoError(t, c.Put(ctx, addr, "key1", []byte("value1")))

	got, err := c.Get(ctx, addr, "key1")
	require.NoError(t, err)
	require.Equal(t, []byte("value1"), got)

	require.NoError(t, c.Delete(ctx, addr, "key1"))
	got, err = c.Get(ctx, addr, "key1")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestClientLookupAndRoutingTable(t *testing.T) {
	sp, err := ring.NewSpace(8, 3)
	require.NoError(t, err)
	owner := domain.NodeInfo{ID: sp.FromUint64(42), Addr: "owner-addr"}
	diagBackend := &stubDiag{owner: owner, rt: diag.RoutingTableReply{Self: owner}}
	addr := startStubServer(t, &stubBackup{values: map[string][]byte{}}, diagBackend)

	mgr := New(time.Second, 0)
	defer mgr.Close()
	c := NewClient(mgr)

	ctx := context.Background()
	gotOwner, err := c.Lookup(ctx, addr, "somekey")
	require.NoError(t, err)
	require.Equal(t, owner.Addr, gotOwner.Addr)

	rt, err := c.RoutingTable(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, owner.Addr, rt.Self.Addr)
}

func TestManagerPoolsConnectionAfterSuccessfulCall(t *testing.T) {
	backend := &stubBackup{values: make(map[string][]byte)}
	addr := startStubServer(t, backend, &stubDiag{})

	mgr := New(time.Second, 0)
	defer mgr.Close()
	c := NewClient(mgr)

	ctx := context.Background()
	require.NoError(t, c.Put(ctx, addr, "k", []byte("v")))

	mgr.mu.RLock()
	_, pooled := mgr.conns[addr]
	mgr.mu.RUnlock()
	require.True(t, pooled, "a successful call should leave a pooled connection")
}
