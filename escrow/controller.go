// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package escrow implements the origin-side reserve controller. It holds
// the real asset backing the representation supply, keeps the liability
// book (totalBridged), opportunistically invests everything above a target
// buffer in an external yield vault, and skims accrued yield to a
// beneficiary.
//
// The managed value (liquid balance plus redeemable vault position) is
// expected to cover totalBridged, but the two are not coupled atomically:
// vault deposits may fail without aborting a transfer, and the vault's
// reported value can transiently drop below the liability. The controller
// tolerates both.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	safemath "github.com/luxfi/math"

	"github.com/luxfi/teleport/channel"
	"github.com/luxfi/teleport/events"
	"github.com/luxfi/teleport/metrics"
	"github.com/luxfi/teleport/ownable"
	"github.com/luxfi/teleport/payload"
	"github.com/luxfi/teleport/units"
	"github.com/luxfi/teleport/vault"
)

const (
	// MinTransfer is the smallest outbound amount accepted, one whole
	// unit; anything smaller can round to zero vault shares.
	MinTransfer = units.Token

	// DustThreshold is the minimum imbalance worth moving funds for.
	// Rebalances and skims below it are silent no-ops, which is the
	// hysteresis that keeps tiny perturbations from causing churn.
	DustThreshold = 50 * units.MilliToken

	// DustRetention is deliberately left behind by every rebalance
	// deposit and yield skim so the very next call does not immediately
	// cross the threshold again.
	DustRetention = 10 * units.MilliToken
)

var (
	ErrAmountTooLow      = errors.New("amount below minimum transfer")
	ErrInvalidMessage    = errors.New("invalid inbound message")
	ErrLedgerDesync      = errors.New("liability underflow: ledgers have desynchronized")
	ErrZeroBeneficiary   = errors.New("beneficiary must not be the zero address")
	ErrSameBeneficiary   = errors.New("beneficiary unchanged")
	ErrNilChannel        = errors.New("nil channel sender")
	ErrNilVault          = errors.New("nil vault")
	ErrNilAsset          = errors.New("nil reserve asset")
	ErrNilDatabase       = errors.New("nil database")
	errRefundUnreachable = errors.New("refund after failed send")
)

// Asset is the fungible-transfer surface the controller needs over the
// reserve asset.
type Asset interface {
	Transfer(from, to ids.ShortID, amount uint64) error
	TransferFrom(spender, from, to ids.ShortID, amount uint64) error
	BalanceOf(addr ids.ShortID) uint64
}

// Config carries the controller's one-time initialization parameters.
// TargetBuffer and Beneficiary are starting values; persisted state from
// an earlier run takes precedence.
type Config struct {
	Owner ids.ShortID
	// SelfAddr is the controller's account on the reserve-asset book and
	// its owner identity on the vault.
	SelfAddr ids.ShortID

	Asset   Asset
	Vault   vault.Vault
	Channel channel.Sender

	CounterpartAddr      ids.ID
	CounterpartNetworkID uint32

	TargetBuffer uint64
	Beneficiary  ids.ShortID

	DB      database.Database
	Log     log.Logger
	Journal *events.Journal
	Metrics *metrics.Metrics
}

var _ channel.Receiver = (*Controller)(nil)

// Controller is the escrow reserve controller. One exclusive lock guards
// every state-mutating entry point for its full duration; the two bridge
// components never share a lock.
type Controller struct {
	mu sync.Mutex

	owner *ownable.Ownable

	self  ids.ShortID
	asset Asset
	vault vault.Vault

	ch                   channel.Sender
	counterpartAddr      ids.ID
	counterpartNetworkID uint32

	// totalBridged is the nominal liability: net amount sent outbound
	// minus amount returned inbound. Under correct operation it equals
	// the representation ledger's total supply.
	totalBridged uint64
	targetBuffer uint64
	beneficiary  ids.ShortID

	db      database.Database
	journal *events.Journal
	metrics *metrics.Metrics
	log     log.Logger
}

// New creates a controller, restoring any state persisted by an earlier
// instance on the same database.
func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Channel == nil:
		return nil, ErrNilChannel
	case cfg.Vault == nil:
		return nil, ErrNilVault
	case cfg.Asset == nil:
		return nil, ErrNilAsset
	case cfg.DB == nil:
		return nil, ErrNilDatabase
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

	c := &Controller{
		owner:                owner,
		self:                 cfg.SelfAddr,
		asset:                cfg.Asset,
		vault:                cfg.Vault,
		ch:                   cfg.Channel,
		counterpartAddr:      cfg.CounterpartAddr,
		counterpartNetworkID: cfg.CounterpartNetworkID,
		totalBridged:         0,
		targetBuffer:         cfg.TargetBuffer,
		beneficiary:          cfg.Beneficiary,
		db:                   cfg.DB,
		journal:              journal,
		metrics:              cfg.Metrics,
		log:                  logger,
	}

	if err := c.loadState(); err != nil {
		return nil, fmt.Errorf("restoring escrow state: %w", err)
	}
	return c, nil
}

// Addr returns the controller's account on the reserve-asset book.
// Callers approve this address before an outbound transfer can pull
// from them.
func (c *Controller) Addr() ids.ShortID {
	return c.self
}

// Owner exposes the ownership capability.
func (c *Controller) Owner() *ownable.Ownable {
	return c.owner
}

// Journal exposes the controller's event journal.
func (c *Controller) Journal() *events.Journal {
	return c.journal
}

// TotalBridged returns the current liability.
func (c *Controller) TotalBridged() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.totalBridged
}

// TargetBuffer returns the desired liquid balance.
func (c *Controller) TargetBuffer() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.targetBuffer
}

// Beneficiary returns the current yield recipient.
func (c *Controller) Beneficiary() ids.ShortID {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.beneficiary
}

// LiquidBalance returns the controller's uninvested asset balance.
func (c *Controller) LiquidBalance() uint64 {
	return c.asset.BalanceOf(c.self)
}

// ManagedValue returns liquid balance plus the vault position's current
// redeemable value.
func (c *Controller) ManagedValue() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.managedValue()
}

// managedValue assumes c.mu is held.
func (c *Controller) managedValue() (uint64, error) {
	position := c.vault.PreviewRedeem(c.vault.ShareBalance(c.self))
	return safemath.Add(position, c.asset.BalanceOf(c.self))
}

// OutboundTransfer pulls amount from caller into escrow, notifies the
// representation ledger, and grows the liability. The vault deposit of the
// pulled amount is best-effort: a refusing vault leaves the amount liquid
// and never aborts the transfer. The recorded transfer-initiated total is
// the liability AFTER the increment.
//
// The deposit is attempted only after the transport has accepted the
// message, so a refused send unwinds with a plain refund instead of a
// vault round-trip.
func (c *Controller) OutboundTransfer(
	ctx context.Context,
	caller ids.ShortID,
	amount uint64,
	opts channel.Options,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if amount < MinTransfer {
		return ErrAmountTooLow
	}

	if err := c.asset.TransferFrom(c.self, caller, c.self, amount); err != nil {
		return err
	}

	body, err := (&payload.Transfer{
		Recipient: caller,
		Amount:    amount,
	}).Bytes()
	if err == nil {
		err = c.ch.Send(ctx, c.counterpartNetworkID, c.counterpartAddr, opts.ForceSync, body)
	}
	if err != nil {
		if refundErr := c.asset.Transfer(c.self, caller, amount); refundErr != nil {
			return errors.Join(err, errRefundUnreachable, refundErr)
		}
		return fmt.Errorf("outbound transfer not sent: %w", err)
	}

	// Deliberately tolerated failure: a full or paused vault just means
	// the amount stays liquid until the next rebalance.
	if _, depositErr := c.vault.Deposit(ctx, amount, c.self); depositErr != nil {
		c.log.Warn("vault refused deposit; keeping funds liquid",
			log.Uint64("amount", amount),
			log.Err(depositErr),
		)
	}

	newTotal, err := safemath.Add(c.totalBridged, amount)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLedgerDesync, err)
	}
	c.totalBridged = newTotal
	if err := putUint64(c.db, totalBridgedKey, newTotal); err != nil {
		return err
	}

	c.journal.Append(events.TransferInitiated{
		Actor:  caller,
		Amount: amount,
		Total:  newTotal,
	})
	c.metrics.MarkTransferOut(amount)
	c.metrics.SetBooks(newTotal, c.asset.BalanceOf(c.self))
	c.log.Info("outbound transfer initiated",
		log.Stringer("caller", caller),
		log.Uint64("amount", amount),
		log.Uint64("totalBridged", newTotal),
	)
	return nil
}

// InboundReceive implements channel.Receiver: it honors a burn on the
// representation side by releasing the real asset. If the liquid balance
// cannot cover the claim, the shortfall is withdrawn from the vault; a
// vault that cannot produce the liquidity makes the whole claim fail,
// because the liability cannot be honored with funds that do not exist.
// The recorded transfer-claimed total is the liability AFTER the
// decrement.
func (c *Controller) InboundReceive(
	ctx context.Context,
	caller channel.Sender,
	originAddr ids.ID,
	originNetworkID uint32,
	payloadBytes []byte,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.ch ||
		originAddr != c.counterpartAddr ||
		originNetworkID != c.counterpartNetworkID {
		return ErrInvalidMessage
	}

	transfer, err := payload.ParseTransfer(payloadBytes)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	liquid := c.asset.BalanceOf(c.self)
	if liquid < transfer.Amount {
		shortfall := transfer.Amount - liquid
		if _, err := c.vault.Withdraw(ctx, shortfall, c.self, c.self); err != nil {
			return fmt.Errorf("vault cannot cover claim shortfall of %d: %w", shortfall, err)
		}
	}

	// An underflowing liability means a claim arrived for value this side
	// never recorded as bridged. That is not recoverable here; it needs
	// manual reconciliation.
	newTotal, err := safemath.Sub(c.totalBridged, transfer.Amount)
	if err != nil {
		return ErrLedgerDesync
	}

	if err := c.asset.Transfer(c.self, transfer.Recipient, transfer.Amount); err != nil {
		return err
	}

	c.totalBridged = newTotal
	if err := putUint64(c.db, totalBridgedKey, newTotal); err != nil {
		return err
	}

	c.journal.Append(events.TransferClaimed{
		Recipient: transfer.Recipient,
		Amount:    transfer.Amount,
		Total:     newTotal,
	})
	c.metrics.MarkTransferIn(transfer.Amount)
	c.metrics.SetBooks(newTotal, c.asset.BalanceOf(c.self))
	c.log.Info("inbound transfer claimed",
		log.Stringer("recipient", transfer.Recipient),
		log.Uint64("amount", transfer.Amount),
		log.Uint64("totalBridged", newTotal),
	)
	return nil
}

// Rebalance restores the liquid balance toward the target buffer:
// above-buffer excess is invested, below-buffer shortfall is withdrawn
// when the vault can cover it. Imbalances within DustThreshold are left
// alone; calling Rebalance twice in a row is a no-op the second time.
// Anyone may call it.
func (c *Controller) Rebalance(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	liquid := c.asset.BalanceOf(c.self)
	buffer := c.targetBuffer

	switch {
	case liquid > buffer:
		excess := liquid - buffer
		if excess <= DustThreshold {
			return nil
		}
		deposit := excess - DustRetention
		if _, err := c.vault.Deposit(ctx, deposit, c.self); err != nil {
			return fmt.Errorf("rebalance deposit: %w", err)
		}
		c.journal.Append(events.Rebalanced{Deposited: deposit})
		c.metrics.MarkRebalance()
		c.log.Info("rebalanced",
			log.Uint64("deposited", deposit),
			log.Uint64("buffer", buffer),
		)

	case liquid < buffer:
		shortfall := buffer - liquid
		if c.vault.PreviewRedeem(c.vault.ShareBalance(c.self)) <= shortfall {
			return nil
		}
		if _, err := c.vault.Withdraw(ctx, shortfall, c.self, c.self); err != nil {
			return fmt.Errorf("rebalance withdraw: %w", err)
		}
		c.journal.Append(events.Rebalanced{Withdrawn: shortfall})
		c.metrics.MarkRebalance()
		c.log.Info("rebalanced",
			log.Uint64("withdrawn", shortfall),
			log.Uint64("buffer", buffer),
		)
	}

	c.metrics.SetBooks(c.totalBridged, c.asset.BalanceOf(c.self))
	return nil
}

// SkimYield pays the beneficiary everything the managed value holds above
// the liability, less retained dust. A managed value transiently below the
// liability means there is nothing to skim, not an error. Anyone may call
// it.
func (c *Controller) SkimYield(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.skimYield(ctx)
}

// skimYield assumes c.mu is held.
func (c *Controller) skimYield(ctx context.Context) error {
	managed, err := c.managedValue()
	if err != nil {
		return err
	}
	if managed == 0 {
		return nil
	}
	if managed < c.totalBridged {
		// Transient undershoot of the vault's reported value. Zero yield.
		c.log.Debug("managed value below liability; nothing to skim",
			log.Uint64("managed", managed),
			log.Uint64("totalBridged", c.totalBridged),
		)
		return nil
	}

	excess := managed - c.totalBridged
	liquid := c.asset.BalanceOf(c.self)
	if excess > liquid {
		if _, err := c.vault.Withdraw(ctx, excess-liquid, c.self, c.self); err != nil {
			return fmt.Errorf("skim withdraw: %w", err)
		}
	}

	if excess <= DustThreshold {
		return nil
	}

	amount := excess - DustRetention
	if err := c.asset.Transfer(c.self, c.beneficiary, amount); err != nil {
		return err
	}

	c.journal.Append(events.YieldClaimed{
		Beneficiary: c.beneficiary,
		Amount:      amount,
	})
	c.metrics.MarkYieldSkim()
	c.metrics.SetBooks(c.totalBridged, c.asset.BalanceOf(c.self))
	c.log.Info("yield claimed",
		log.Stringer("beneficiary", c.beneficiary),
		log.Uint64("amount", amount),
	)
	return nil
}

// SetTargetBuffer updates the desired liquid balance. Owner only.
func (c *Controller) SetTargetBuffer(caller ids.ShortID, amount uint64) error {
	if err := c.owner.CheckOwner(caller); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.targetBuffer
	c.targetBuffer = amount
	if err := putUint64(c.db, targetBufferKey, amount); err != nil {
		return err
	}

	c.journal.Append(events.BufferUpdated{
		Previous: previous,
		Updated:  amount,
	})
	c.log.Info("target buffer updated",
		log.Uint64("previous", previous),
		log.Uint64("updated", amount),
	)
	return nil
}

// SetBeneficiary switches the yield recipient. Owner only. Accrued yield
// is skimmed first so none of it is misattributed to the new beneficiary.
func (c *Controller) SetBeneficiary(ctx context.Context, caller, beneficiary ids.ShortID) error {
	if err := c.owner.CheckOwner(caller); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if beneficiary == ids.ShortEmpty {
		return ErrZeroBeneficiary
	}
	if beneficiary == c.beneficiary {
		return ErrSameBeneficiary
	}

	if err := c.skimYield(ctx); err != nil {
		return fmt.Errorf("skimming before beneficiary switch: %w", err)
	}

	previous := c.beneficiary
	c.beneficiary = beneficiary
	if err := putShortID(c.db, beneficiaryKey, beneficiary); err != nil {
		return err
	}

	c.journal.Append(events.BeneficiaryUpdated{
		Previous: previous,
		Updated:  beneficiary,
	})
	c.log.Info("beneficiary updated",
		log.Stringer("previous", previous),
		log.Stringer("updated", beneficiary),
	)
	return nil
}
