// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger implements the destination-side representation ledger.
// It maintains the supply of the representation token: burns on outbound
// transfers toward the origin ledger, mints on authenticated inbound
// messages from the escrow controller.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/teleport/channel"
	"github.com/luxfi/teleport/events"
	"github.com/luxfi/teleport/metrics"
	"github.com/luxfi/teleport/ownable"
	"github.com/luxfi/teleport/payload"
	"github.com/luxfi/teleport/token"
	"github.com/luxfi/teleport/units"
)

// MinTransfer is the smallest outbound amount accepted. Sub-unit dust
// could round to zero vault shares on the origin side, so one whole unit
// is the floor.
const MinTransfer = units.Token

var (
	ErrAmountTooLow   = errors.New("amount below minimum transfer")
	ErrInvalidMessage = errors.New("invalid inbound message")
	ErrNilChannel     = errors.New("nil channel sender")

	_ channel.Receiver = (*Ledger)(nil)
)

// Config carries the one-time initialization parameters of the ledger.
// The channel, counterpart and network bindings are immutable after New.
type Config struct {
	Owner                ids.ShortID
	Channel              channel.Sender
	CounterpartAddr      ids.ID
	CounterpartNetworkID uint32

	Log     log.Logger
	Journal *events.Journal
	Metrics *metrics.Metrics
}

// Ledger is the representation-token component. Every state-mutating
// entry point runs under one exclusive lock, mirroring the
// single-threaded-per-ledger execution the protocol assumes.
type Ledger struct {
	mu sync.Mutex

	owner *ownable.Ownable
	token *token.Token

	ch                   channel.Sender
	counterpartAddr      ids.ID
	counterpartNetworkID uint32

	journal *events.Journal
	metrics *metrics.Metrics
	log     log.Logger
}

// New creates a representation ledger with zero supply.
func New(cfg Config) (*Ledger, error) {
	if cfg.Channel == nil {
		return nil, ErrNilChannel
	}

	owner, err := ownable.New(cfg.Owner)
	if err != nil {
		return nil, err
	}

	logger := cfg.Log
	if logger == nil {
		logger = log.NoLog{}
	}
	journal := cfg.Journal
	if journal == nil {
		journal = events.NewJournal()
	}

	return &Ledger{
		owner:                owner,
		token:                token.New("representation"),
		ch:                   cfg.Channel,
		counterpartAddr:      cfg.CounterpartAddr,
		counterpartNetworkID: cfg.CounterpartNetworkID,
		journal:              journal,
		metrics:              cfg.Metrics,
		log:                  logger,
	}, nil
}

// Token exposes the representation balance book.
func (l *Ledger) Token() *token.Token {
	return l.token
}

// Owner exposes the ownership capability.
func (l *Ledger) Owner() *ownable.Ownable {
	return l.owner
}

// Journal exposes the ledger's event journal.
func (l *Ledger) Journal() *events.Journal {
	return l.journal
}

// TotalSupply returns the current representation supply.
func (l *Ledger) TotalSupply() uint64 {
	return l.token.TotalSupply()
}

// OutboundTransfer burns amount from caller and asks the transport to
// deliver a matching release instruction to the escrow controller. The
// recorded transfer-initiated total is the supply BEFORE the burn; that
// ordering is part of the protocol's event contract.
//
// The operation is atomic: if the transport refuses the message, the burn
// is rolled back and no event is recorded. There are no retries here;
// retry policy belongs to the caller.
func (l *Ledger) OutboundTransfer(
	ctx context.Context,
	caller ids.ShortID,
	recipient ids.ShortID,
	amount uint64,
	opts channel.Options,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount < MinTransfer {
		return ErrAmountTooLow
	}

	preBurnSupply := l.token.TotalSupply()
	if err := l.token.Burn(caller, amount); err != nil {
		return err
	}

	body, err := (&payload.Transfer{
		Recipient: recipient,
		Amount:    amount,
	}).Bytes()
	if err == nil {
		err = l.ch.Send(ctx, l.counterpartNetworkID, l.counterpartAddr, opts.ForceSync, body)
	}
	if err != nil {
		// The transport never saw the message; restore the burn so the
		// whole operation is a no-op.
		if mintErr := l.token.Mint(caller, amount); mintErr != nil {
			return errors.Join(err, mintErr)
		}
		return fmt.Errorf("outbound transfer not sent: %w", err)
	}

	l.journal.Append(events.TransferInitiated{
		Actor:  caller,
		Amount: amount,
		Total:  preBurnSupply,
	})
	l.metrics.MarkTransferOut(amount)
	l.log.Info("outbound transfer initiated",
		log.Stringer("caller", caller),
		log.Stringer("recipient", recipient),
		log.Uint64("amount", amount),
		log.Uint64("supply", l.token.TotalSupply()),
	)
	return nil
}

// InboundReceive implements channel.Receiver. Only the bound transport
// handle may invoke it, and only with the fixed counterpart's origin
// metadata; any mismatch is rejected before state is touched. The
// recorded transfer-claimed total is the supply BEFORE the mint.
func (l *Ledger) InboundReceive(
	ctx context.Context,
	caller channel.Sender,
	originAddr ids.ID,
	originNetworkID uint32,
	payloadBytes []byte,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.ch ||
		originAddr != l.counterpartAddr ||
		originNetworkID != l.counterpartNetworkID {
		return ErrInvalidMessage
	}

	transfer, err := payload.ParseTransfer(payloadBytes)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	// Provenance is verified, so the mint amount is trusted as-is.
	preMintSupply := l.token.TotalSupply()
	if err := l.token.Mint(transfer.Recipient, transfer.Amount); err != nil {
		return err
	}

	l.journal.Append(events.TransferClaimed{
		Recipient: transfer.Recipient,
		Amount:    transfer.Amount,
		Total:     preMintSupply,
	})
	l.metrics.MarkTransferIn(transfer.Amount)
	l.log.Info("inbound transfer claimed",
		log.Stringer("recipient", transfer.Recipient),
		log.Uint64("amount", transfer.Amount),
		log.Uint64("supply", l.token.TotalSupply()),
	)
	return nil
}
