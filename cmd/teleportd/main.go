// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// teleportd runs both bridge components in one process, connected by an
// in-memory channel that a background loop pumps. It exists for local
// development and demos; a production deployment runs each side against a
// real cross-network transport.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/spf13/cobra"

	"github.com/luxfi/teleport/api"
	"github.com/luxfi/teleport/channel"
	"github.com/luxfi/teleport/channel/memchannel"
	"github.com/luxfi/teleport/escrow"
	"github.com/luxfi/teleport/events"
	"github.com/luxfi/teleport/ledger"
	"github.com/luxfi/teleport/metrics"
	"github.com/luxfi/teleport/token"
	"github.com/luxfi/teleport/units"
	"github.com/luxfi/teleport/vault/sharevault"
)

const (
	originNetworkID      = uint32(1)
	destinationNetworkID = uint32(2)
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "teleportd",
		Short: "Runs a single-process bridge",
		RunE:  runFunc,
	}
	flags := c.Flags()
	flags.String("http-addr", ":9650", "address the API server listens on")
	flags.Uint64("target-buffer", 100*units.Token, "escrow liquid balance to maintain, in base units")
	flags.Duration("pump-interval", time.Second, "delay between channel delivery rounds")
	flags.Duration("shutdown-timeout", 10*time.Second, "grace period for draining API requests")
	return c
}

func runFunc(c *cobra.Command, args []string) error {
	flags := c.Flags()
	httpAddr, err := flags.GetString("http-addr")
	if err != nil {
		return err
	}
	targetBuffer, err := flags.GetUint64("target-buffer")
	if err != nil {
		return err
	}
	pumpInterval, err := flags.GetDuration("pump-interval")
	if err != nil {
		return err
	}
	shutdownTimeout, err := flags.GetDuration("shutdown-timeout")
	if err != nil {
		return err
	}

	ctx := c.Context()
	logger := log.New("component", "teleportd")
	registry := metric.NewRegistry()
	bridgeMetrics, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	ch := memchannel.New(logger)
	escrowAddr := ids.GenerateTestID()
	ledgerAddr := ids.GenerateTestID()

	escrowRelay := &channel.Relay{}
	escrowPort, err := ch.Open(originNetworkID, escrowAddr, escrowRelay)
	if err != nil {
		return err
	}
	ledgerRelay := &channel.Relay{}
	ledgerPort, err := ch.Open(destinationNetworkID, ledgerAddr, ledgerRelay)
	if err != nil {
		return err
	}

	owner := ids.GenerateTestShortID()
	beneficiary := ids.GenerateTestShortID()
	asset := token.New("reserve")
	reserveVault := sharevault.New(asset, ids.GenerateTestShortID())

	controller, err := escrow.New(escrow.Config{
		Owner:                owner,
		SelfAddr:             ids.GenerateTestShortID(),
		Asset:                asset,
		Vault:                reserveVault,
		Channel:              escrowPort,
		CounterpartAddr:      ledgerAddr,
		CounterpartNetworkID: destinationNetworkID,
		TargetBuffer:         targetBuffer,
		Beneficiary:          beneficiary,
		DB:                   memdb.New(),
		Log:                  logger,
		Journal:              events.NewJournal(),
		Metrics:              bridgeMetrics,
	})
	if err != nil {
		return fmt.Errorf("building escrow controller: %w", err)
	}
	escrowRelay.Bind(controller)

	representation, err := ledger.New(ledger.Config{
		Owner:                owner,
		Channel:              ledgerPort,
		CounterpartAddr:      escrowAddr,
		CounterpartNetworkID: originNetworkID,
		Log:                  logger,
		Journal:              events.NewJournal(),
		Metrics:              bridgeMetrics,
	})
	if err != nil {
		return fmt.Errorf("building representation ledger: %w", err)
	}
	ledgerRelay.Bind(representation)

	logger.Info("bridge wired",
		log.Stringer("escrowAddr", escrowAddr),
		log.Stringer("ledgerAddr", ledgerAddr),
		log.Stringer("owner", owner),
		log.Stringer("escrowAccount", controller.Addr()),
		log.Uint64("targetBuffer", targetBuffer),
	)

	go pump(ctx, logger, ch, pumpInterval)

	listener, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return err
	}
	server := api.New(api.Config{
		Log:             logger,
		Escrow:          controller,
		Ledger:          representation,
		ShutdownTimeout: shutdownTimeout,
	}, listener)

	dispatchErr := make(chan error, 1)
	go func() {
		dispatchErr <- server.Dispatch()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return server.Shutdown()
	case err := <-dispatchErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// pump delivers queued cross-ledger messages until ctx is canceled.
func pump(ctx context.Context, logger log.Logger, ch *memchannel.Channel, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			delivered, err := ch.DeliverAll(ctx)
			if err != nil {
				logger.Warn("message delivery failed",
					log.Int("delivered", delivered),
					log.Err(err),
				)
				continue
			}
			if delivered > 0 {
				logger.Debug("delivered messages",
					log.Int("delivered", delivered),
				)
			}
		}
	}
}
