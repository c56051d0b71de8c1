package tester

import (
	"context"
	"net"
	"net/rpc"
	"sync"
	"testing"
	"time"

	"chordring/internal/bootstrap"
	"chordring/internal/client"
	"chordring/internal/diag"
	"chordring/internal/domain"
	"chordring/internal/logger"

	"github.com/stretchr/testify/require"
)

func TestRandomIntRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		got := randomInt(3, 7)
		require.GreaterOrEqual(t, got, 3)
		require.LessOrEqual(t, got, 7)
	}
	require.Equal(t, 5, randomInt(5, 5))
	require.Equal(t, 5, randomInt(5, 2)) // min >= max: always min
}

func TestGenerateRandomKeyProducesDistinctHexStrings(t *testing.T) {
	a, err := generateRandomKey()
	require.NoError(t, err)
	b, err := generateRandomKey()
	require.NoError(t, err)
	require.Len(t, a, 32) // 16 bytes hex-encoded
	require.NotEqual(t, a, b)
}

type stubDiag struct {
	owner domain.NodeInfo
}

func (s *stubDiag) Lookup(req *diag.LookupRequest, reply *diag.LookupReply) error {
	reply.Owner = s.owner
	return nil
}
func (s *stubDiag) RoutingTable(req *diag.RoutingTableRequest, reply *diag.RoutingTableReply) error {
	return nil
}

func startStubNode(t *testing.T) string {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName(diag.ServiceName, &stubDiag{owner: domain.NodeInfo{Addr: "owner"}}))
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

func TestTesterRunQueryWaveWritesResults(t *testing.T) {
	addr := startStubNode(t)
	boot := bootstrap.NewStaticBootstrap([]string{addr})
	mgr := client.New(time.Second, 0)
	defer mgr.Close()

	w := &recordingWriter{}
	cfg := &Config{}
	cfg.Query.Rate = 10
	cfg.Query.Timeout = time.Second
	cfg.Query.Parallelism.MinWorkers = 2
	cfg.Query.Parallelism.MaxWorkers = 2
	cfg.Simulation.Duration = time.Second

	tst := New(cfg, &logger.NopLogger{}, w, boot, mgr)
	require.NoError(t, tst.runQueryWave(context.Background()))

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.rows, 2)
	for _, r := range w.rows {
		require.Equal(t, addr, r.node)
		require.Equal(t, "SUCCESS", r.result)
	}
}

type recordingWriter struct {
	mu   sync.Mutex
	rows []rowRecord
}

type rowRecord struct {
	node, result string
	delay        time.Duration
}

func (w *recordingWriter) WriteRow(node, result string, delay time.Duration) error {
	w.mu.Lock()
	w.rows = append(w.rows, rowRecord{node, result, delay})
	w.mu.Unlock()
	return nil
}
func (w *recordingWriter) Flush() error { return nil }
func (w *recordingWriter) Close() error { return nil }
