// Command coordinatord is the Serai-facing process. It opens the
// database and a processor-facing outbound message queue, then runs two
// tasks: substrate-scan, which logs a tick every 2 seconds, and
// heartbeat, which logs every 30 seconds. It does not construct any
// Tendermint or Tributary instance, the key-gen orchestrator, the
// validator-set ledger or the dex, and nothing reads or writes the
// message queue it opens.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/tos-network/custody/internal/config"
	"github.com/tos-network/custody/internal/database"
	"github.com/tos-network/custody/internal/tasks"
	"github.com/tos-network/custody/internal/xlog"
	"github.com/tos-network/custody/messages"
)

func main() {
	app := &cli.App{
		Name:  "coordinatord",
		Usage: "Serai-side coordinator for a validator set's threshold custody",
		Flags: config.Flags(),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		xlog.Crit("coordinatord exited", "err", err)
	}
}

func run(c *cli.Context) error {
	defer config.ExitOnPanic("coordinatord")

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

	outbound := messages.NewQueue(db, "coordinator-out")
	handled := messages.NewHandledMessageDb(db)
	_ = outbound
	_ = handled

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group := tasks.NewGroup(ctx)

	group.Go("substrate-scan", func(ctx context.Context) error {
		return substrateScanLoop(ctx, cfg, db)
	})
	group.Go("heartbeat", func(ctx context.Context) error {
		return heartbeatLoop(ctx)
	})

	<-ctx.Done()
	group.Stop()
	return nil
}
