package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	cfg.Listener.TLSCertFile = "/tmp/cert.pem"
	cfg.Listener.TLSKeyFile = "/tmp/key.pem"
	cfg.Listener.TLSCAFile = "/tmp/ca.pem"
	if err := Validate(&cfg); err != nil {
		t.Fatalf("expected defaults (with TLS filled in) to validate, got: %v", err)
	}
}

func TestValidate_RejectsBadSchemaVersion(t *testing.T) {
	cfg := Defaults()
	cfg.SchemaVersion = "2"
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected error for unsupported schema version")
	}
}

func TestValidate_RejectsMissingTLSMaterial(t *testing.T) {
	cfg := Defaults()
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected error for missing TLS cert/key/ca")
	}
}

func TestValidate_RejectsOutOfRangeFallenBehindFraction(t *testing.T) {
	cfg := Defaults()
	cfg.Listener.TLSCertFile, cfg.Listener.TLSKeyFile, cfg.Listener.TLSCAFile = "a", "b", "c"
	cfg.FallenBehind.ThresholdFraction = 1.5
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected error for fallen_behind.threshold_fraction > 1.0")
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
schema_version: "1"
node_id: 7
number_of_nodes: 5
listener:
  addr: "0.0.0.0:9443"
  tls_cert_file: /tmp/cert.pem
  tls_key_file: /tmp/key.pem
  tls_ca_file: /tmp/ca.pem
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NodeID != 7 {
		t.Fatalf("expected node_id 7, got %d", cfg.NodeID)
	}
	if cfg.NumberOfNodes != 5 {
		t.Fatalf("expected number_of_nodes 5, got %d", cfg.NumberOfNodes)
	}
	// Unset fields should retain their defaults.
	if cfg.Sync.MaxListenerSyncs != 4 {
		t.Fatalf("expected default max_listener_syncs 4, got %d", cfg.Sync.MaxListenerSyncs)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
