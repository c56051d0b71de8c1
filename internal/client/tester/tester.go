// Package tester drives a synthetic query load against a running ring,
// discovering nodes the same way a joining node would and recording
// latency/outcome samples for each lookup.
package tester

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	mrand "math/rand"
	"sync"
	"time"

	"chordring/internal/bootstrap"
	"chordring/internal/client"
	"chordring/internal/client/tester/writer"
	"chordring/internal/logger"
)

// Tester runs timed waves of random-key lookups against a discovered ring
// and reports each outcome to a Writer.
type Tester struct {
	cfg     *Config
	logger  logger.Logger
	writer  writer.Writer
	boot    bootstrap.Bootstrap
	client  *client.Client
	started time.Time
}

// New builds a Tester. mgr backs the RPC client the tester dials nodes
// through; the caller owns its lifetime and closes it on exit.
func New(cfg *Config, lgr logger.Logger, w writer.Writer, boot bootstrap.Bootstrap, mgr *client.Manager) *Tester {
	return &Tester{
		cfg:    cfg,
		logger: lgr,
		writer: w,
		boot:   boot,
		client: client.NewClient(mgr),
	}
}

// Run drives query waves at the configured rate until the simulation
// duration elapses or ctx is canceled.
func (t *Tester) Run(ctx context.Context) error {
	t.logger.Info("tester started", logger.F("duration", t.cfg.Simulation.Duration.String()))
	t.started = time.Now()
	endTime := t.started.Add(t.cfg.Simulation.Duration)
	interval := time.Duration(float64(time.Second) / t.cfg.Query.Rate)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if time.Now().After(endTime) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := t.runQueryWave(ctx); err != nil {
				t.logger.Error("query wave failed", logger.F("err", err.Error()))
			}
		}
	}

	t.logger.Info("tester finished")
	return nil
}

func (t *Tester) runQueryWave(ctx context.Context) error {
	nodes, err := t.boot.Discover(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap discovery failed: %w", err)
	}
	if len(nodes) == 0 {
		t.logger.Warn("no nodes discovered")
		return nil
	}

	p := randomInt(t.cfg.Query.Parallelism.MinWorkers, t.cfg.Query.Parallelism.MaxWorkers)
	t.logger.Info("starting query wave", logger.F("parallel", p), logger.F("nodes", len(nodes)))

	var wg sync.WaitGroup
	wg.Add(p)
	for i := 0; i < p; i++ {
		go func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
			default:
				t.doLookup(ctx, nodes)
			}
		}()
	}
	wg.Wait()
	return nil
}

func (t *Tester) doLookup(ctx context.Context, nodes []string) {
	addr := nodes[mrand.Intn(len(nodes))]
	key, err := generateRandomKey()
	if err != nil {
		t.logger.Warn("failed to generate random key", logger.F("err", err.Error()))
		return
	}

	qctx, cancel := context.WithTimeout(ctx, t.cfg.Query.Timeout)
	defer cancel()

	start := time.Now()
	_, err = t.client.Lookup(qctx, addr, key)
	delay := time.Since(start)

	var result string
	switch {
	case err == nil:
		result = "SUCCESS"
	case errors.Is(err, context.DeadlineExceeded):
		result = "TIMEOUT"
	default:
		result = fmt.Sprintf("ERROR_%v", err)
	}

	t.logger.Info("lookup result",
		logger.F("node", addr), logger.F("key", key),
		logger.F("result", result), logger.F("delay_ms", delay.Milliseconds()))

	if err := t.writer.WriteRow(addr, result, delay); err != nil {
		t.logger.Warn("failed to write row", logger.F("err", err.Error()))
	}
}

func randomInt(min, max int) int {
	if min >= max {
		return min
	}
	return mrand.Intn(max-min+1) + min
}

// generateRandomKey returns a random hex string the ring's key space can
// hash, standing in for an application-supplied raw key.
func generateRandomKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
