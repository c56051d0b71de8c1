package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"chordring/internal/config"
	"chordring/internal/domain"
)

// CoreDNSBootstrap discovers ring peers by scanning the etcd key prefix a
// CoreDNS etcd plugin also serves as SRV records, and publishes this node's
// own membership under a lease so a crashed node's record expires on its
// own.
type CoreDNSBootstrap struct {
	client   *clientv3.Client
	basePath string
	domain   string
	ttl      int64

	mu      sync.Mutex
	leaseID clientv3.LeaseID
}

// coreDNSRecord is the JSON value written under each node's key; Discover
// reads back exactly what Register wrote.
type coreDNSRecord struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// NewCoreDNSBootstrap dials etcd for both discovery scans and the lease
// this node's own record is published under.
func NewCoreDNSBootstrap(cfg config.CoreDNSConfig) (*CoreDNSBootstrap, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: dial etcd: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30
	}
	return &CoreDNSBootstrap{
		client:   cli,
		basePath: strings.TrimSuffix(cfg.BasePath, "/"),
		domain:   cfg.Domain,
		ttl:      ttl,
	}, nil
}

func (b *CoreDNSBootstrap) keyPrefix() string {
	return fmt.Sprintf("%s/dht/%s/_tcp/", b.basePath, b.domain)
}

func (b *CoreDNSBootstrap) keyFor(nodeID string) string {
	return b.keyPrefix() + nodeID
}

// Discover scans every record under the shared prefix and decodes each into
// a dialable address.
func (b *CoreDNSBootstrap) Discover(ctx context.Context) ([]string, error) {
	resp, err := b.client.Get(ctx, b.keyPrefix(), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("bootstrap: etcd scan: %w", err)
	}
	peers := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var rec coreDNSRecord
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			continue
		}
		peers = append(peers, fmt.Sprintf("%s:%d", rec.Host, rec.Port))
	}
	return peers, nil
}

// Register grants a TTL lease and writes node's record under it, keeping
// the lease alive in the background until Deregister revokes it.
func (b *CoreDNSBootstrap) Register(ctx context.Context, node *domain.NodeInfo) error {
	host, port, err := splitHostPort(node.Addr)
	if err != nil {
		return err
	}
	lease, err := b.client.Grant(ctx, b.ttl)
	if err != nil {
		return fmt.Errorf("bootstrap: grant lease: %w", err)
	}
	rec, err := json.Marshal(coreDNSRecord{Host: host, Port: port})
	if err != nil {
		return fmt.Errorf("bootstrap: encode record: %w", err)
	}
	if _, err := b.client.Put(ctx, b.keyFor(node.ID.String()), string(rec), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("bootstrap: put record: %w", err)
	}

	keepAlive, err := b.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return fmt.Errorf("bootstrap: start keepalive: %w", err)
	}
	go func() {
		for range keepAlive {
		}
	}()

	b.mu.Lock()
	b.leaseID = lease.ID
	b.mu.Unlock()
	return nil
}

// Deregister revokes the lease Register granted, which deletes the record
// and stops the keepalive goroutine.
func (b *CoreDNSBootstrap) Deregister(ctx context.Context, node *domain.NodeInfo) error {
	b.mu.Lock()
	lease := b.leaseID
	b.mu.Unlock()
	if lease == 0 {
		return nil
	}
	if _, err := b.client.Revoke(ctx, lease); err != nil {
		return fmt.Errorf("bootstrap: revoke lease: %w", err)
	}
	return nil
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("bootstrap: invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("bootstrap: invalid port in %q: %w", addr, err)
	}
	return host, port, nil
}
