// Command client-worker is a scripted smoke-test client: it discovers the
// ring through one bootstrap node's routing table, then issues randomized
// lookups at a fixed rate, refreshing its node list periodically.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"log"
	"math/big"
	"time"

	"chordring/internal/client"
)

func randomHexBits(bits int) string {
	nbytes := (bits + 7) / 8
	b := make([]byte, nbytes)
	_, _ = rand.Read(b)
	rem := bits % 8
	if rem != 0 {
		mask := byte((1<<rem - 1) << (8 - rem))
		b[0] &= mask
	}
	return hex.EncodeToString(b)
}

func pickRandom(nodes []string) string {
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(nodes))))
	return nodes[n.Int64()]
}

func discoverPeers(ctx context.Context, api *client.Client, addr string) ([]string, error) {
	rt, err := api.RoutingTable(ctx, addr)
	if err != nil {
		return nil, err
	}
	nodes := []string{rt.Self.Addr}
	if rt.Predecessor != nil {
		nodes = append(nodes, rt.Predecessor.Addr)
	}
	for _, s := range rt.Successors {
		if s != nil {
			nodes = append(nodes, s.Addr)
		}
	}
	for _, f := range rt.Fingers {
		if f != nil {
			nodes = append(nodes, f.Addr)
		}
	}
	return nodes, nil
}

func main() {
	bootstrapAddr := flag.String("bootstrap", "127.0.0.1:5000", "bootstrap node address")
	bits := flag.Int("bits", 128, "key length in bits")
	rate := flag.Float64("rate", 1.0, "lookup requests per second")
	timeout := flag.Duration("timeout", 2*time.Second, "per-request timeout")
	refresh := flag.Duration("refresh", 30*time.Second, "routing table refresh interval")
	flag.Parse()

	mgr := client.New(*timeout, 60*time.Second)
	defer mgr.Close()
	api := client.NewClient(mgr)

	discoverCtx, cancel := context.WithTimeout(context.Background(), *timeout)
	nodes, err := discoverPeers(discoverCtx, api, *bootstrapAddr)
	cancel()
	if err != nil || len(nodes) == 0 {
		log.Fatalf("failed to fetch routing table from bootstrap %s: %v", *bootstrapAddr, err)
	}
	log.Printf("bootstrap succeeded, discovered %d nodes", len(nodes))

	interval := time.Duration(float64(time.Second) / *rate)
	ticker := time.NewTicker(*refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n := pickRandom(nodes)
			refreshCtx, cancel := context.WithTimeout(context.Background(), *timeout)
			newNodes, err := discoverPeers(refreshCtx, api, n)
			cancel()
			if err == nil && len(newNodes) > 0 {
				nodes = newNodes
				log.Printf("refreshed node list, now have %d nodes", len(nodes))
			}
		default:
			key := randomHexBits(*bits)
			n := pickRandom(nodes)

			ctx, cancel := context.WithTimeout(context.Background(), *timeout)
			start := time.Now()
			_, err := api.Lookup(ctx, n, key)
			cancel()
			if err != nil {
				log.Printf("[lookup] key=%s via %s ERROR: %v latency=%s", key, n, err, time.Since(start))
			} else {
				log.Printf("[lookup] key=%s via %s OK latency=%s", key, n, time.Since(start))
			}

			time.Sleep(interval)
		}
	}
}
