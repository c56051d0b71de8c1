package tester

import (
	"fmt"
	"strings"
	"time"

	"chordring/internal/configloader"
	"chordring/internal/logger"
)

// SimulationConfig controls the overall test runtime.
type SimulationConfig struct {
	Duration time.Duration `yaml:"duration"`
}

// DHTConfig carries the ring keyspace parameter the tester needs to derive
// its own random keys the same way a node would.
type DHTConfig struct {
	IDBits int `yaml:"idBits"`
}

// CoreDNSConfig mirrors the node's bootstrap.coredns settings.
type CoreDNSConfig struct {
	Endpoints []string `yaml:"endpoints"`
	BasePath  string   `yaml:"basePath"`
	Domain    string   `yaml:"domain"`
	TTL       int64    `yaml:"ttl"`
}

// BootstrapConfig defines the discovery mechanism: static peers, Route53
// SRV records, or a CoreDNS-style etcd zone — the same three modes a node
// supports, since the tester discovers the ring the same way a node does.
type BootstrapConfig struct {
	Mode    string                     `yaml:"mode"`
	Peers   []string                   `yaml:"peers"`
	Route53 configloader.Route53Config `yaml:"route53"`
	CoreDNS CoreDNSConfig              `yaml:"coredns"`
}

// CSVConfig defines CSV export options.
type CSVConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ParallelismConfig defines how many concurrent workers are used.
type ParallelismConfig struct {
	MinWorkers int `yaml:"min"`
	MaxWorkers int `yaml:"max"`
}

// QueryConfig defines how queries are generated.
type QueryConfig struct {
	Rate        float64           `yaml:"rate"`
	Timeout     time.Duration     `yaml:"timeout"`
	Parallelism ParallelismConfig `yaml:"parallelism"`
}

// Config is the root configuration for the load-testing client.
type Config struct {
	Logger     configloader.LoggerConfig `yaml:"logger"`
	Simulation SimulationConfig          `yaml:"simulation"`
	DHT        DHTConfig                 `yaml:"dht"`
	Bootstrap  BootstrapConfig           `yaml:"bootstrap"`
	CSV        CSVConfig                 `yaml:"csv"`
	Query      QueryConfig               `yaml:"query"`
}

// Load reads the configuration file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := configloader.LoadYAML(path, cfg); err != nil {
		return nil, err
	}

	configloader.OverrideBool(&cfg.Logger.Active, "LOGGER_ACTIVE")
	configloader.OverrideString(&cfg.Logger.Level, "LOGGER_LEVEL")
	configloader.OverrideString(&cfg.Logger.Encoding, "LOGGER_ENCODING")
	configloader.OverrideString(&cfg.Logger.Mode, "LOGGER_MODE")
	configloader.OverrideString(&cfg.Logger.File.Path, "LOGGER_FILE_PATH")
	configloader.OverrideInt(&cfg.Logger.File.MaxSize, "LOGGER_FILE_MAXSIZE")
	configloader.OverrideInt(&cfg.Logger.File.MaxBackups, "LOGGER_FILE_MAXBACKUPS")
	configloader.OverrideInt(&cfg.Logger.File.MaxAge, "LOGGER_FILE_MAXAGE")
	configloader.OverrideBool(&cfg.Logger.File.Compress, "LOGGER_FILE_COMPRESS")

	configloader.OverrideDuration(&cfg.Simulation.Duration, "SIM_DURATION")
	configloader.OverrideInt(&cfg.DHT.IDBits, "DHT_ID_BITS")

	configloader.OverrideString(&cfg.Bootstrap.Mode, "BOOTSTRAP_MODE")
	configloader.OverrideStringSlice(&cfg.Bootstrap.Peers, "BOOTSTRAP_PEERS")

	configloader.OverrideString(&cfg.Bootstrap.Route53.HostedZoneID, "ROUTE53_ZONE_ID")
	configloader.OverrideString(&cfg.Bootstrap.Route53.DomainSuffix, "ROUTE53_DOMAIN_SUFFIX")
	configloader.OverrideInt64(&cfg.Bootstrap.Route53.TTL, "ROUTE53_TTL")
	configloader.OverrideString(&cfg.Bootstrap.Route53.Region, "ROUTE53_REGION")

	configloader.OverrideStringSlice(&cfg.Bootstrap.CoreDNS.Endpoints, "COREDNS_ENDPOINTS")
	configloader.OverrideString(&cfg.Bootstrap.CoreDNS.BasePath, "COREDNS_BASE_PATH")
	configloader.OverrideString(&cfg.Bootstrap.CoreDNS.Domain, "COREDNS_DOMAIN")
	configloader.OverrideInt64(&cfg.Bootstrap.CoreDNS.TTL, "COREDNS_TTL")

	configloader.OverrideBool(&cfg.CSV.Enabled, "CSV_ENABLED")
	configloader.OverrideString(&cfg.CSV.Path, "CSV_PATH")

	configloader.OverrideFloat(&cfg.Query.Rate, "QUERY_RATE")
	configloader.OverrideDuration(&cfg.Query.Timeout, "QUERY_TIMEOUT")
	configloader.OverrideInt(&cfg.Query.Parallelism.MinWorkers, "QUERY_PARALLELISM_MIN")
	configloader.OverrideInt(&cfg.Query.Parallelism.MaxWorkers, "QUERY_PARALLELISM_MAX")

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if c.Logger.Active {
		switch c.Logger.Level {
		case "debug", "info", "warn", "error":
		default:
			errs = append(errs, fmt.Sprintf("logger.level must be one of [debug, info, warn, error], got %q", c.Logger.Level))
		}
		if c.Logger.Mode == "file" && c.Logger.File.Path == "" {
			errs = append(errs, "logger.file.path must be set when logger.mode = file")
		}
	}

	if c.Simulation.Duration <= 0 {
		errs = append(errs, fmt.Sprintf("simulation.duration must be > 0 (got %v)", c.Simulation.Duration))
	}

	if c.DHT.IDBits <= 0 {
		errs = append(errs, fmt.Sprintf("dht.idBits must be > 0 (got %d)", c.DHT.IDBits))
	}

	switch c.Bootstrap.Mode {
	case "static":
		if len(c.Bootstrap.Peers) == 0 {
			errs = append(errs, "bootstrap.peers must not be empty when mode = static")
		}
	case "route53":
		r := c.Bootstrap.Route53
		if r.HostedZoneID == "" {
			errs = append(errs, "bootstrap.route53.hostedZoneId must not be empty when mode = route53")
		}
		if r.DomainSuffix == "" {
			errs = append(errs, "bootstrap.route53.domainSuffix must not be empty when mode = route53")
		}
	case "coredns":
		d := c.Bootstrap.CoreDNS
		if len(d.Endpoints) == 0 {
			errs = append(errs, "bootstrap.coredns.endpoints must not be empty when mode = coredns")
		}
		if d.Domain == "" {
			errs = append(errs, "bootstrap.coredns.domain must not be empty when mode = coredns")
		}
	default:
		errs = append(errs, fmt.Sprintf("bootstrap.mode must be one of [static, route53, coredns], got %q", c.Bootstrap.Mode))
	}

	if c.CSV.Enabled && c.CSV.Path == "" {
		errs = append(errs, "csv.path must be set when csv.enabled = true")
	}

	if c.Query.Rate <= 0 {
		errs = append(errs, fmt.Sprintf("query.rate must be > 0 (got %f)", c.Query.Rate))
	}
	if c.Query.Parallelism.MinWorkers <= 0 {
		errs = append(errs, fmt.Sprintf("query.parallelism.min must be > 0 (got %d)", c.Query.Parallelism.MinWorkers))
	}
	if c.Query.Parallelism.MaxWorkers < c.Query.Parallelism.MinWorkers {
		errs = append(errs, fmt.Sprintf("query.parallelism.max must be >= min (got %d < %d)",
			c.Query.Parallelism.MaxWorkers, c.Query.Parallelism.MinWorkers))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (cfg *Config) LogConfig(lgr logger.Logger) {
	lgr.Info("loaded tester configuration",
		logger.F("logger.active", cfg.Logger.Active),
		logger.F("logger.level", cfg.Logger.Level),
		logger.F("simulation.duration", cfg.Simulation.Duration.String()),
		logger.F("dht.idBits", cfg.DHT.IDBits),
		logger.F("bootstrap.mode", cfg.Bootstrap.Mode),
		logger.F("csv.enabled", cfg.CSV.Enabled),
		logger.F("csv.path", cfg.CSV.Path),
		logger.F("query.rate", cfg.Query.Rate),
		logger.F("query.parallelism.min", cfg.Query.Parallelism.MinWorkers),
		logger.F("query.parallelism.max", cfg.Query.Parallelism.MaxWorkers),
	)
}
