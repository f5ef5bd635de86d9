// Command processord is the external-chain-facing process. It runs a
// coordinator-link task, which dials coordinatord over the messages
// transport, resends pending outbound envelopes and marks each received
// envelope handled, and a chain-scan task, which logs a tick every 10
// seconds. It does not construct a scanner, TransactionMachine or
// multisig scheduler, and received envelopes are not acted on beyond
// being marked handled.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tos-network/custody/internal/config"
	"github.com/tos-network/custody/internal/database"
	"github.com/tos-network/custody/internal/tasks"
	"github.com/tos-network/custody/internal/xlog"
	"github.com/tos-network/custody/messages"
)

func main() {
	app := &cli.App{
		Name:   "processord",
		Usage:  "external-chain processor for a validator set's threshold custody",
		Flags:  config.Flags(),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		xlog.Crit("processord exited", "err", err)
	}
}

func run(c *cli.Context) error {
	defer config.ExitOnPanic("processord")

	cfg, err := config.FromCLIContext(c)
	if err != nil {
		return err
	}
	xlog.SetLevel(cfg.LogLevel)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	outbound := messages.NewQueue(db, "processor-out")
	handled := messages.NewHandledMessageDb(db)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group := tasks.NewGroup(ctx)

	group.Go("coordinator-link", func(ctx context.Context) error {
		return coordinatorLinkLoop(ctx, cfg, outbound, handled)
	})
	group.Go("chain-scan", func(ctx context.Context) error {
		return chainScanLoop(ctx, cfg, db)
	})

	<-ctx.Done()
	group.Stop()
	return nil
}

func coordinatorLinkLoop(ctx context.Context, cfg *config.Config, outbound *messages.Queue, handled *messages.HandledMessageDb) error {
	log := xlog.Root()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		transport, err := messages.Dial(cfg.SeraiHost)
		if err != nil {
			log.Warn("coordinator-link: dial failed, retrying", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
			continue
		}

		pending, err := outbound.Pending()
		if err == nil {
			for _, env := range pending {
				_ = transport.Send(env)
			}
		}

		for {
			env, err := transport.Receive()
			if err != nil {
				log.Warn("coordinator-link: connection lost", "err", err)
				break
			}
			already, _ := handled.AlreadyHandled(env.ID)
			if already {
				continue
			}
			_ = handled.MarkHandled(env.ID)
			select {
			case <-ctx.Done():
				_ = transport.Close()
				return nil
			default:
			}
		}
		_ = transport.Close()
	}
}

func chainScanLoop(ctx context.Context, cfg *config.Config, db database.KeyValueStore) error {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	log := xlog.Root()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			log.Debug("chain-scan: tick", "network", cfg.Network.String())
		}
	}
}
