package config

import (
	"testing"
)

func TestParseArgs_ServerMode(t *testing.T) {
	args := []string{"--server"}
	cfg, err := ParseArgs(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.IsServer {
		t.Error("expected IsServer to be true")
	}
	if cfg.Port != DefaultPort {
		t.Errorf("expected port %d, got %d", DefaultPort, cfg.Port)
	}
	if cfg.EloK != DefaultEloK {
		t.Errorf("expected Elo K %d, got %d", DefaultEloK, cfg.EloK)
	}
}

func TestParseArgs_JoinMode(t *testing.T) {
	args := []string{"--join", "192.168.1.100:5555", "--name", "alice"}
	cfg, err := ParseArgs(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.IsServer {
		t.Error("expected IsServer to be false")
	}
	if cfg.ServerAddr != "192.168.1.100:5555" {
		t.Errorf("expected ServerAddr '192.168.1.100:5555', got '%s'", cfg.ServerAddr)
	}
	if cfg.Username != "alice" {
		t.Errorf("expected username 'alice', got '%s'", cfg.Username)
	}
}

func TestParseArgs_CustomOptions(t *testing.T) {
	args := []string{"--server", "--port", "8080", "--points", "21", "--name", "Alice"}
	cfg, err := ParseArgs(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.IsServer {
		t.Error("expected IsServer to be true")
	}
	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.EloK != 21 {
		t.Errorf("expected Elo K 21, got %d", cfg.EloK)
	}
	if cfg.Username != "Alice" {
		t.Errorf("expected name 'Alice', got '%s'", cfg.Username)
	}
}

func TestParseArgs_JoinWithCustomOptions(t *testing.T) {
	args := []string{"--join", "localhost:9999", "--name", "Bob"}
	cfg, err := ParseArgs(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.IsServer {
		t.Error("expected IsServer to be false")
	}
	if cfg.ServerAddr != "localhost:9999" {
		t.Errorf("expected ServerAddr 'localhost:9999', got '%s'", cfg.ServerAddr)
	}
	if cfg.Username != "Bob" {
		t.Errorf("expected name 'Bob', got '%s'", cfg.Username)
	}
}

func TestParseArgs_RequiresMode(t *testing.T) {
	args := []string{"--name", "Alice"}
	_, err := ParseArgs(args)
	if err == nil {
		t.Error("expected error when neither --server nor --join specified")
	}
}

func TestParseArgs_CannotBeBoth(t *testing.T) {
	args := []string{"--server", "--join", "localhost:5555"}
	_, err := ParseArgs(args)
	if err == nil {
		t.Error("expected error when both --server and --join specified")
	}
}

func TestParseArgs_InvalidPortTooLow(t *testing.T) {
	args := []string{"--server", "--port", "0"}
	_, err := ParseArgs(args)
	if err == nil {
		t.Error("expected error for port 0")
	}
}

func TestParseArgs_InvalidPortTooHigh(t *testing.T) {
	args := []string{"--server", "--port", "65536"}
	_, err := ParseArgs(args)
	if err == nil {
		t.Error("expected error for port 65536")
	}
}

func TestParseArgs_InvalidEloKZero(t *testing.T) {
	args := []string{"--server", "--points", "0"}
	_, err := ParseArgs(args)
	if err == nil {
		t.Error("expected error for Elo K of 0")
	}
}

func TestParseArgs_InvalidEloKNegative(t *testing.T) {
	args := []string{"--server", "--points", "-5"}
	_, err := ParseArgs(args)
	if err == nil {
		t.Error("expected error for negative Elo K")
	}
}

func TestParseArgs_ValidPortBoundaries(t *testing.T) {
	tests := []struct {
		name string
		port string
		want int
	}{
		{"minimum port", "1", 1},
		{"maximum port", "65535", 65535},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{"--server", "--port", tt.port}
			cfg, err := ParseArgs(args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Port != tt.want {
				t.Errorf("expected port %d, got %d", tt.want, cfg.Port)
			}
		})
	}
}

func TestDefaultConstants(t *testing.T) {
	if DefaultPort != 5555 {
		t.Errorf("expected DefaultPort 5555, got %d", DefaultPort)
	}
	if DefaultEloK != 32 {
		t.Errorf("expected DefaultEloK 32, got %d", DefaultEloK)
	}
}
