// Package config parses command-line arguments for both the jeux server
// and client binaries.
package config

import (
	"errors"
	"flag"
	"fmt"
)

// Default values for configuration.
const (
	DefaultPort  = 5555
	DefaultEloK  = 32
	DefaultUsers = 256
)

// Config holds the parsed command-line configuration for either binary.
type Config struct {
	IsServer   bool
	ServerAddr string
	Port       int
	EloK       int
	Username   string
}

// ParseArgs parses command line arguments and returns a Config. Exactly
// one of --server or --join must be given.
func ParseArgs(args []string) (*Config, error) {
	fs := flag.NewFlagSet("jeux", flag.ContinueOnError)

	server := fs.Bool("server", false, "run as server")
	join := fs.String("join", "", "server address to join")
	port := fs.Int("port", DefaultPort, "port number (1-65535)")
	eloK := fs.Int("points", DefaultEloK, "Elo K-factor used for rating updates")
	name := fs.String("name", "", "username to log in as")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *server && *join != "" {
		return nil, errors.New("cannot specify both --server and --join")
	}
	if !*server && *join == "" {
		return nil, errors.New("must specify either --server or --join")
	}
	if *port < 1 || *port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", *port)
	}
	if *eloK < 1 {
		return nil, fmt.Errorf("points (Elo K-factor) must be at least 1, got %d", *eloK)
	}

	return &Config{
		IsServer:   *server,
		ServerAddr: *join,
		Port:       *port,
		EloK:       *eloK,
		Username:   *name,
	}, nil
}
