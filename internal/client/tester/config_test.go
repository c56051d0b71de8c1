package tester

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Simulation.Duration = time.Second
	cfg.DHT.IDBits = 8
	cfg.Bootstrap.Mode = "static"
	cfg.Bootstrap.Peers = []string{"n1:9000"}
	cfg.Query.Rate = 1
	cfg.Query.Parallelism.MinWorkers = 1
	cfg.Query.Parallelism.MaxWorkers = 2
	return cfg
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsMissingStaticPeers(t *testing.T) {
	cfg := validConfig()
	cfg.Bootstrap.Peers = nil
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownBootstrapMode(t *testing.T) {
	cfg := validConfig()
	cfg.Bootstrap.Mode = "carrier-pigeon"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroDuration(t *testing.T) {
	cfg := validConfig()
	cfg.Simulation.Duration = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsMaxWorkersBelowMin(t *testing.T) {
	cfg := validConfig()
	cfg.Query.Parallelism.MinWorkers = 5
	cfg.Query.Parallelism.MaxWorkers = 2
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresCSVPathWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.CSV.Enabled = true
	cfg.CSV.Path = ""
	require.Error(t, cfg.Validate())
}

func TestValidateRoute53ModeRequiresZoneAndSuffix(t *testing.T) {
	cfg := validConfig()
	cfg.Bootstrap.Mode = "route53"
	require.Error(t, cfg.Validate())

	cfg.Bootstrap.Route53.HostedZoneID = "Z123"
	cfg.Bootstrap.Route53.DomainSuffix = "chord.local"
	require.NoError(t, cfg.Validate())
}
