// Package config provides configuration loading, validation, and
// hot-reload for a shadowgraph node.
//
// Configuration file: /etc/shadowgraphd/config.yaml (default)
// Schema version: 1
//
// Hot-reload:
//   - Process listens for SIGHUP.
//   - On SIGHUP: re-read and re-validate config.yaml.
//   - Apply non-destructive changes only. shadowgraphd live-applies the
//     fallen-behind threshold; every other change takes effect on
//     restart.
//   - Destructive changes (listen address, TLS material, audit DB path)
//     require restart.
//   - If the new config is invalid, the old config remains active and
//     an error is logged. The process does NOT crash on invalid
//     hot-reload config — the same self-healing posture the shadow
//     graph itself uses for a decreasing expireBelow request.
//
// Validation:
//   - All required fields must be present.
//   - Numeric ranges enforced (thresholds in [0,1], sizes >= 1,
//     throttle.max_bytes >= 0).
//   - Invalid config on startup: process refuses to start (fatal error).
//   - Invalid config on hot-reload: logged, old config retained.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected by the Makefile via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for a shadowgraph node.
// All fields have defaults; see Defaults() for values.
type Config struct {
	// SchemaVersion must be "1". Future versions will trigger migration.
	SchemaVersion string `yaml:"schema_version"`

	// NodeID identifies this node in sync sessions and audit entries.
	// Default: 0.
	NodeID uint32 `yaml:"node_id"`

	// NumberOfNodes is the size of the network. It caps the phase-1 tip
	// list and scales the throttle threshold; the fallen-behind threshold
	// is scaled by the number of configured listener peers instead.
	NumberOfNodes int `yaml:"number_of_nodes"`

	Graph         GraphConfig         `yaml:"graph"`
	Sync          SyncConfig          `yaml:"sync"`
	Throttle      ThrottleConfig      `yaml:"throttle"`
	FallenBehind  FallenBehindConfig  `yaml:"fallen_behind"`
	Listener      ListenerConfig      `yaml:"listener"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// GraphConfig holds shadow-graph-level operational parameters.
type GraphConfig struct {
	// ExpiryInterval is how often the process calls ExpireBelow against
	// consensus's latest generation window. Default: 1s.
	ExpiryInterval time.Duration `yaml:"expiry_interval"`
}

// SyncConfig holds synchronizer-level parameters.
type SyncConfig struct {
	// MaxListenerSyncs is the inbound-sync cap (spec §6
	// maxListenerSyncs): a new inbound sync is refused, and its
	// connection closed, once the number of inbound syncs in flight
	// exceeds this value, so at most MaxListenerSyncs+1 run at once.
	// Default: 4.
	MaxListenerSyncs int `yaml:"max_listener_syncs"`

	// SyncTimeout bounds a single sync attempt end to end. Default: 30s.
	SyncTimeout time.Duration `yaml:"sync_timeout"`

	// SyncInterval is how often this node initiates an outbound sync
	// with a randomly chosen peer. Default: 500ms.
	SyncInterval time.Duration `yaml:"sync_interval"`

	// MaxTipsPerSync is validated but not read by shadowgraphd: the
	// number of tip hashes accepted from a peer in phase 1 is capped at
	// NumberOfNodes. Default: 1000.
	MaxTipsPerSync int `yaml:"max_tips_per_sync"`
}

// ThrottleConfig holds the optional bandwidth throttle's tunables
// (spec §4.3/§6 throttle7* fields).
type ThrottleConfig struct {
	// Enabled toggles the trailing throttle payload. Default: false.
	Enabled bool `yaml:"enabled"`

	// MaxBytes caps the throttle payload size. Default: 4096.
	MaxBytes int `yaml:"max_bytes"`

	// ExtraFactor scales the throttle payload against events sent.
	// Default: 0.1.
	ExtraFactor float64 `yaml:"extra_factor"`

	// Threshold, scaled by NumberOfNodes, is the events-exchanged limit
	// below which the throttle fires. Default: 0.5.
	Threshold float64 `yaml:"threshold"`
}

// FallenBehindConfig holds the FallenBehindManager's tunables (spec §4.5).
type FallenBehindConfig struct {
	// ThresholdFraction is the fraction of neighbors that must report
	// this node fallen behind before HasFallenBehind() is true.
	// Default: 0.5.
	ThresholdFraction float64 `yaml:"threshold_fraction"`
}

// ListenerConfig holds the mTLS listener's connection parameters.
type ListenerConfig struct {
	// Addr is the listen address for inbound sync connections.
	// Default: 0.0.0.0:9443.
	Addr string `yaml:"addr"`

	// Peers is the static list of known peers this node dials for
	// outbound syncs. Each peer's TLS client certificate's CommonName
	// must equal its NodeID (decimal), so an inbound connection can be
	// attributed to a NodeID without a separate handshake field.
	Peers []PeerConfig `yaml:"peers"`

	// TLSCertFile is the path to this node's TLS certificate (PEM).
	TLSCertFile string `yaml:"tls_cert_file"`

	// TLSKeyFile is the path to this node's TLS private key (PEM).
	TLSKeyFile string `yaml:"tls_key_file"`

	// TLSCAFile is the path to the CA certificate used to verify peers
	// (PEM).
	TLSCAFile string `yaml:"tls_ca_file"`
}

// PeerConfig names one static peer this node may dial.
type PeerConfig struct {
	NodeID uint32 `yaml:"node_id"`
	Addr   string `yaml:"addr"`
}

// StorageConfig holds the audit ledger's BoltDB parameters.
type StorageConfig struct {
	// DBPath is the absolute path to the audit ledger's BoltDB file.
	// Default: /var/lib/shadowgraphd/audit.db.
	DBPath string `yaml:"db_path"`

	// RetentionDays is the audit ledger retention period. Default: 30.
	RetentionDays int `yaml:"retention_days"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	// Default: 127.0.0.1:9091.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	// Default: info.
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	// Default: json.
	LogFormat string `yaml:"log_format"`
}

// DefaultDBPath is the default audit ledger BoltDB file location.
const DefaultDBPath = "/var/lib/shadowgraphd/audit.db"

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	return Config{
		SchemaVersion: "1",
		NumberOfNodes: 1,
		Graph: GraphConfig{
			ExpiryInterval: time.Second,
		},
		Sync: SyncConfig{
			MaxListenerSyncs: 4,
			SyncTimeout:      30 * time.Second,
			SyncInterval:     500 * time.Millisecond,
			MaxTipsPerSync:   1000,
		},
		Throttle: ThrottleConfig{
			Enabled:     false,
			MaxBytes:    4096,
			ExtraFactor: 0.1,
			Threshold:   0.5,
		},
		FallenBehind: FallenBehindConfig{
			ThresholdFraction: 0.5,
		},
		Listener: ListenerConfig{
			Addr: "0.0.0.0:9443",
		},
		Storage: StorageConfig{
			DBPath:        DefaultDBPath,
			RetentionDays: 30,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load reads and validates a config file from the given path.
// Returns the merged config (defaults overridden by file values).
// Returns an error if the file cannot be read, parsed, or validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness.
// Returns a descriptive error listing all violations found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.NumberOfNodes < 1 {
		errs = append(errs, fmt.Sprintf("number_of_nodes must be >= 1, got %d", cfg.NumberOfNodes))
	}
	if cfg.Sync.MaxListenerSyncs < 1 {
		errs = append(errs, fmt.Sprintf("sync.max_listener_syncs must be >= 1, got %d", cfg.Sync.MaxListenerSyncs))
	}
	if cfg.Sync.SyncTimeout < time.Second {
		errs = append(errs, fmt.Sprintf("sync.sync_timeout must be >= 1s, got %s", cfg.Sync.SyncTimeout))
	}
	if cfg.Sync.MaxTipsPerSync < 1 {
		errs = append(errs, fmt.Sprintf("sync.max_tips_per_sync must be >= 1, got %d", cfg.Sync.MaxTipsPerSync))
	}
	if cfg.Throttle.MaxBytes < 0 {
		errs = append(errs, fmt.Sprintf("throttle.max_bytes must be >= 0, got %d", cfg.Throttle.MaxBytes))
	}
	if cfg.Throttle.ExtraFactor < 0 {
		errs = append(errs, fmt.Sprintf("throttle.extra_factor must be >= 0, got %f", cfg.Throttle.ExtraFactor))
	}
	if cfg.Throttle.Threshold < 0.0 || cfg.Throttle.Threshold > 1.0 {
		errs = append(errs, fmt.Sprintf("throttle.threshold must be in [0.0, 1.0], got %f", cfg.Throttle.Threshold))
	}
	if cfg.FallenBehind.ThresholdFraction < 0.0 || cfg.FallenBehind.ThresholdFraction > 1.0 {
		errs = append(errs, fmt.Sprintf("fallen_behind.threshold_fraction must be in [0.0, 1.0], got %f", cfg.FallenBehind.ThresholdFraction))
	}
	if cfg.Listener.Addr == "" {
		errs = append(errs, "listener.addr must not be empty")
	}
	if cfg.Listener.TLSCertFile == "" || cfg.Listener.TLSKeyFile == "" || cfg.Listener.TLSCAFile == "" {
		errs = append(errs, "listener.tls_cert_file, tls_key_file, and tls_ca_file are required")
	}
	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path must not be empty")
	}
	if cfg.Storage.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("storage.retention_days must be >= 1, got %d", cfg.Storage.RetentionDays))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", joinStrings(errs, "\n  - "))
	}
	return nil
}

// joinStrings joins a slice of strings with a separator.
func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
