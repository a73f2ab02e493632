package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(CLIOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 6379 {
		t.Fatalf("Port = %d, want 6379", cfg.Port)
	}
	if cfg.IsReplica() {
		t.Fatal("expected primary by default")
	}
	if cfg.Expiry.Schedule != "@every 1s" {
		t.Fatalf("Expiry.Schedule = %q", cfg.Expiry.Schedule)
	}
}

func TestLoad_CLIOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("port: 7000\ndir: /data\n"), 0644); err != nil {
		t.Fatal(err)
	}

	port := 8000
	cfg, err := Load(CLIOptions{ConfigPath: path, Port: &port})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8000 {
		t.Fatalf("Port = %d, want CLI override 8000", cfg.Port)
	}
	if cfg.Dir != "/data" {
		t.Fatalf("Dir = %q, want file value /data", cfg.Dir)
	}
}

func TestLoad_ReplicaOf(t *testing.T) {
	replicaof := "localhost 6379"
	cfg, err := Load(CLIOptions{ReplicaOf: &replicaof})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsReplica() || cfg.ReplicaOf.Host != "localhost" || cfg.ReplicaOf.Port != 6379 {
		t.Fatalf("ReplicaOf = %+v", cfg.ReplicaOf)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	port := 0
	if _, err := Load(CLIOptions{Port: &port}); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestParseByteSize(t *testing.T) {
	cases := map[string]int64{
		"0":    0,
		"1024": 1024,
		"1kb":  1024,
		"2mb":  2 << 20,
		"1gb":  1 << 30,
	}
	for in, want := range cases {
		got, err := ParseByteSize(in)
		if err != nil || got != want {
			t.Fatalf("ParseByteSize(%q) = (%d, %v), want %d", in, got, err, want)
		}
	}
}

func TestAdminRequiresAllowOrigins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("admin:\n  enabled: true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(CLIOptions{ConfigPath: path}); err == nil {
		t.Fatal("expected error: admin enabled with no allow_origins")
	}
}

func TestAdminParsesCIDRsAndBareIPs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := "admin:\n  enabled: true\n  allow_origins:\n    - 127.0.0.1\n    - 10.0.0.0/8\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(CLIOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Admin.ParsedCIDRs) != 2 {
		t.Fatalf("ParsedCIDRs = %d entries, want 2", len(cfg.Admin.ParsedCIDRs))
	}
}

func TestConfigGet(t *testing.T) {
	cfg, _ := Load(CLIOptions{})
	cfg.Dir = "/tmp"
	cfg.DBFilename = "dump.rdb"
	if v, ok := cfg.ConfigGet("dir"); !ok || v != "/tmp" {
		t.Fatalf("ConfigGet(dir) = (%q, %v)", v, ok)
	}
	if v, ok := cfg.ConfigGet("dbfilename"); !ok || v != "dump.rdb" {
		t.Fatalf("ConfigGet(dbfilename) = (%q, %v)", v, ok)
	}
	if _, ok := cfg.ConfigGet("unknown"); ok {
		t.Fatal("expected unknown param to be unsupported")
	}
}
