// Package config implements the CLI surface from spec.md §6: a minimal,
// environment-variable-only configuration surface. Flags are modeled on
// cmd/utils/flags.go's use of github.com/urfave/cli/v2 and its
// Category-grouped flag definitions, except every flag here is sourced
// purely from an env var (no positional args, no config file — spec.md
// is explicit that the CLI surface is "environment-variable configuration
// only").
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tos-network/custody/internal/common"
	"github.com/tos-network/custody/internal/xlog"
)

// Config is the fully-validated process configuration.
type Config struct {
	DBPath      string
	SeraiKey    [32]byte
	SeraiHost   string
	Network     common.NetworkID
	NetworkRPC  RPCEndpoint
	Entropy     [32]byte
	LogLevel    slog.Level
}

// RPCEndpoint is the external-chain RPC connection triple,
// NETWORK_RPC_{HOSTNAME,PORT,LOGIN} in spec.md §6.
type RPCEndpoint struct {
	Hostname string
	Port     string
	Login    string // "user:pass", empty if unauthenticated
}

var flags = []cli.Flag{
	&cli.StringFlag{Name: "db-path", EnvVars: []string{"DB_PATH"}, Required: true, Usage: "path to the component's goleveldb data directory"},
	&cli.StringFlag{Name: "serai-key", EnvVars: []string{"SERAI_KEY"}, Required: true, Usage: "hex-encoded 32-byte coordinator signing key"},
	&cli.StringFlag{Name: "serai-hostname", EnvVars: []string{"SERAI_HOSTNAME"}, Usage: "hostname of the Serai substrate node"},
	&cli.StringFlag{Name: "network", EnvVars: []string{"NETWORK"}, Usage: "external network this processord instance serves"},
	&cli.StringFlag{Name: "network-rpc-hostname", EnvVars: []string{"NETWORK_RPC_HOSTNAME"}},
	&cli.StringFlag{Name: "network-rpc-port", EnvVars: []string{"NETWORK_RPC_PORT"}},
	&cli.StringFlag{Name: "network-rpc-login", EnvVars: []string{"NETWORK_RPC_LOGIN"}},
	&cli.StringFlag{Name: "entropy", EnvVars: []string{"ENTROPY"}, Required: true, Usage: "64-hex 32-byte seed for deterministic sub-key derivation"},
	&cli.StringFlag{Name: "rust-log", EnvVars: []string{"RUST_LOG"}, Value: "info"},
}

// Flags returns the urfave/cli flag set shared by both cmd/coordinatord
// and cmd/processord.
func Flags() []cli.Flag { return flags }

// FromCLIContext validates and assembles a Config from a populated
// *cli.Context, matching cmd/utils/flags.go's validate-then-construct
// style (e.g. utils.SetNodeConfig).
func FromCLIContext(c *cli.Context) (*Config, error) {
	cfg := &Config{
		DBPath:    c.String("db-path"),
		SeraiHost: c.String("serai-hostname"),
		NetworkRPC: RPCEndpoint{
			Hostname: c.String("network-rpc-hostname"),
			Port:     c.String("network-rpc-port"),
			Login:    c.String("network-rpc-login"),
		},
	}

	if err := decodeFixed32(c.String("serai-key"), &cfg.SeraiKey, "SERAI_KEY"); err != nil {
		return nil, err
	}
	if err := decodeFixed32(c.String("entropy"), &cfg.Entropy, "ENTROPY"); err != nil {
		return nil, err
	}

	if net := c.String("network"); net != "" {
		n, err := parseNetwork(net)
		if err != nil {
			return nil, err
		}
		cfg.Network = n
	}

	level, err := xlog.ParseLevel(c.String("rust-log"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	return cfg, nil
}

func decodeFixed32(s string, out *[32]byte, name string) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("config: %s must be hex: %w", name, err)
	}
	if len(b) != 32 {
		return fmt.Errorf("config: %s must decode to 32 bytes, got %d", name, len(b))
	}
	copy(out[:], b)
	return nil
}

func parseNetwork(s string) (common.NetworkID, error) {
	switch s {
	case "bitcoin":
		return common.NetworkBitcoin, nil
	case "ethereum":
		return common.NetworkEthereum, nil
	case "monero":
		return common.NetworkMonero, nil
	case "serai":
		return common.NetworkSerai, nil
	default:
		return 0, fmt.Errorf("config: unrecognized NETWORK %q", s)
	}
}

// ExitOnPanic installs the process-wide panic hook required by spec.md
// §5: "A panic in any task must terminate the process... so that an
// external supervisor restarts from durable state." Task goroutines
// should defer this immediately on entry.
func ExitOnPanic(taskName string) {
	if r := recover(); r != nil {
		xlog.Root().Error("task panicked, terminating process", "task", taskName, "panic", r)
		os.Exit(1)
	}
}
