// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package escrow

import (
	"context"
	"errors"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/teleport/channel"
	"github.com/luxfi/teleport/events"
	"github.com/luxfi/teleport/ownable"
	"github.com/luxfi/teleport/payload"
	"github.com/luxfi/teleport/token"
	"github.com/luxfi/teleport/units"
	"github.com/luxfi/teleport/vault/sharevault"
)

var errSendRefused = errors.New("send refused")

type sinkSender struct {
	fail bool
	sent [][]byte
}

func (s *sinkSender) Send(_ context.Context, _ uint32, _ ids.ID, _ bool, payload []byte) error {
	if s.fail {
		return errSendRefused
	}
	s.sent = append(s.sent, payload)
	return nil
}

type harness struct {
	*Controller

	asset  *token.Token
	vault  *sharevault.Vault
	sender *sinkSender

	owner           ids.ShortID
	self            ids.ShortID
	beneficiary     ids.ShortID
	caller          ids.ShortID
	counterpartAddr ids.ID
	networkID       uint32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	require := require.New(t)

	h := &harness{
		asset:           token.New("reserve"),
		sender:          &sinkSender{},
		owner:           ids.GenerateTestShortID(),
		self:            ids.GenerateTestShortID(),
		beneficiary:     ids.GenerateTestShortID(),
		caller:          ids.GenerateTestShortID(),
		counterpartAddr: ids.GenerateTestID(),
		networkID:       9,
	}
	h.vault = sharevault.New(h.asset, ids.GenerateTestShortID())

	c, err := New(Config{
		Owner:                h.owner,
		SelfAddr:             h.self,
		Asset:                h.asset,
		Vault:                h.vault,
		Channel:              h.sender,
		CounterpartAddr:      h.counterpartAddr,
		CounterpartNetworkID: h.networkID,
		TargetBuffer:         0,
		Beneficiary:          h.beneficiary,
		DB:                   memdb.New(),
	})
	require.NoError(err)
	h.Controller = c

	// Fund the caller and let the controller pull from it.
	require.NoError(h.asset.Mint(h.caller, 10_000*units.Token))
	h.asset.Approve(h.caller, h.self, 10_000*units.Token)

	return h
}

func (h *harness) claimBytes(t *testing.T, recipient ids.ShortID, amount uint64) []byte {
	t.Helper()

	bytes, err := (&payload.Transfer{Recipient: recipient, Amount: amount}).Bytes()
	require.NoError(t, err)
	return bytes
}

func (h *harness) claim(ctx context.Context, t *testing.T, recipient ids.ShortID, amount uint64) error {
	t.Helper()

	return h.InboundReceive(
		ctx, h.sender, h.counterpartAddr, h.networkID, h.claimBytes(t, recipient, amount))
}

func TestOutboundTransferPullsAndInvests(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)

	require.NoError(h.OutboundTransfer(ctx, h.caller, 5*units.Token, channel.Options{}))

	// The pulled amount went straight into the vault.
	require.Zero(h.LiquidBalance())
	require.Equal(5*units.Token, h.vault.PreviewRedeem(h.vault.ShareBalance(h.self)))
	require.Equal(5*units.Token, h.TotalBridged())
	require.Equal(9_995*units.Token, h.asset.BalanceOf(h.caller))

	require.Len(h.sender.sent, 1)
	transfer, err := payload.ParseTransfer(h.sender.sent[0])
	require.NoError(err)
	require.Equal(h.caller, transfer.Recipient)
	require.Equal(5*units.Token, transfer.Amount)

	// The recorded total is the liability after the increment.
	require.Equal(events.TransferInitiated{
		Actor:  h.caller,
		Amount: 5 * units.Token,
		Total:  5 * units.Token,
	}, h.Journal().Last())
}

// A refusing vault must not abort the transfer; the amount just stays
// liquid.
func TestOutboundTransferDepositFailureTolerated(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)
	h.vault.SetDepositsPaused(true)

	require.NoError(h.OutboundTransfer(ctx, h.caller, 5*units.Token, channel.Options{}))

	require.Equal(5*units.Token, h.LiquidBalance())
	require.Zero(h.vault.ShareBalance(h.self))
	require.Equal(5*units.Token, h.TotalBridged())
	require.Equal(1, h.Journal().Len())
}

func TestOutboundTransferBelowMinimum(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)

	err := h.OutboundTransfer(ctx, h.caller, units.Token-1, channel.Options{})
	require.ErrorIs(err, ErrAmountTooLow)
	require.Equal(10_000*units.Token, h.asset.BalanceOf(h.caller))
	require.Zero(h.TotalBridged())
}

func TestOutboundTransferSendFailureRefunds(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)
	h.sender.fail = true

	err := h.OutboundTransfer(ctx, h.caller, 5*units.Token, channel.Options{})
	require.ErrorIs(err, errSendRefused)

	require.Equal(10_000*units.Token, h.asset.BalanceOf(h.caller))
	require.Zero(h.LiquidBalance())
	require.Zero(h.vault.ShareBalance(h.self))
	require.Zero(h.TotalBridged())
	require.Zero(h.Journal().Len())
}

func TestInboundReceiveReleasesLiquid(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)
	h.vault.SetDepositsPaused(true) // keep the escrow liquid
	require.NoError(h.OutboundTransfer(ctx, h.caller, 5*units.Token, channel.Options{}))

	recipient := ids.GenerateTestShortID()
	require.NoError(h.claim(ctx, t, recipient, 2*units.Token))

	require.Equal(2*units.Token, h.asset.BalanceOf(recipient))
	require.Equal(3*units.Token, h.TotalBridged())
	require.Equal(3*units.Token, h.LiquidBalance())

	// The recorded total is the liability after the decrement.
	require.Equal(events.TransferClaimed{
		Recipient: recipient,
		Amount:    2 * units.Token,
		Total:     3 * units.Token,
	}, h.Journal().Last())
}

func TestInboundReceiveWithdrawsShortfall(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)
	require.NoError(h.OutboundTransfer(ctx, h.caller, 5*units.Token, channel.Options{}))
	require.Zero(h.LiquidBalance()) // everything invested

	recipient := ids.GenerateTestShortID()
	require.NoError(h.claim(ctx, t, recipient, 3*units.Token))

	require.Equal(3*units.Token, h.asset.BalanceOf(recipient))
	require.Equal(2*units.Token, h.TotalBridged())
	require.Equal(2*units.Token, h.vault.PreviewRedeem(h.vault.ShareBalance(h.self)))
}

// If the vault cannot produce the liquidity, the claim must fail: the
// liability cannot be honored with funds that do not exist.
func TestInboundReceiveVaultFailureFatal(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)
	require.NoError(h.OutboundTransfer(ctx, h.caller, 5*units.Token, channel.Options{}))
	h.vault.SetWithdrawalsPaused(true)

	recipient := ids.GenerateTestShortID()
	err := h.claim(ctx, t, recipient, 3*units.Token)
	require.ErrorIs(err, sharevault.ErrWithdrawalsPaused)

	require.Zero(h.asset.BalanceOf(recipient))
	require.Equal(5*units.Token, h.TotalBridged())
}

// A claim for more than was ever bridged means the two ledgers have
// desynchronized; the liability must never wrap.
func TestInboundReceiveLiabilityUnderflow(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)
	h.vault.SetDepositsPaused(true)
	require.NoError(h.OutboundTransfer(ctx, h.caller, 5*units.Token, channel.Options{}))

	// Seed enough liquidity that only the liability check can fail.
	require.NoError(h.asset.Mint(h.self, 10*units.Token))

	err := h.claim(ctx, t, ids.GenerateTestShortID(), 6*units.Token)
	require.ErrorIs(err, ErrLedgerDesync)
	require.Equal(5*units.Token, h.TotalBridged())
}

func TestInboundReceiveProvenance(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t)
	bytes := h.claimBytes(t, ids.GenerateTestShortID(), units.Token)

	tests := []struct {
		name      string
		caller    channel.Sender
		origin    ids.ID
		networkID uint32
	}{
		{
			name:      "wrong caller",
			caller:    &sinkSender{},
			origin:    h.counterpartAddr,
			networkID: h.networkID,
		},
		{
			name:      "wrong origin address",
			caller:    h.sender,
			origin:    ids.GenerateTestID(),
			networkID: h.networkID,
		},
		{
			name:      "wrong origin network",
			caller:    h.sender,
			origin:    h.counterpartAddr,
			networkID: h.networkID + 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			err := h.InboundReceive(ctx, tt.caller, tt.origin, tt.networkID, bytes)
			require.ErrorIs(err, ErrInvalidMessage)
			require.Zero(h.Journal().Len())
		})
	}
}

// With buffer 100 and liquid 170, Rebalance deposits the excess
// less retained dust and a second call is a no-op.
func TestRebalanceDepositsExcess(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)
	require.NoError(h.SetTargetBuffer(h.owner, 100*units.Token))
	require.NoError(h.asset.Mint(h.self, 170*units.Token))

	require.NoError(h.Rebalance(ctx))

	deposited := 70*units.Token - DustRetention
	require.Equal(100*units.Token+DustRetention, h.LiquidBalance())
	require.Equal(deposited, h.vault.PreviewRedeem(h.vault.ShareBalance(h.self)))
	require.Equal(events.Rebalanced{Deposited: deposited}, h.Journal().Last())

	// Idempotent: the retained dust is below the threshold.
	recordsBefore := h.Journal().Len()
	require.NoError(h.Rebalance(ctx))
	require.Equal(recordsBefore, h.Journal().Len())
	require.Equal(100*units.Token+DustRetention, h.LiquidBalance())
}

func TestRebalanceWithdrawsShortfall(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)
	require.NoError(h.asset.Mint(h.self, 200*units.Token))
	require.NoError(h.Rebalance(ctx)) // buffer 0: invest nearly everything

	require.NoError(h.SetTargetBuffer(h.owner, 100*units.Token))
	require.NoError(h.Rebalance(ctx))

	require.Equal(100*units.Token, h.LiquidBalance())
	shortfall := 100*units.Token - DustRetention
	require.Equal(events.Rebalanced{Withdrawn: shortfall}, h.Journal().Last())

	// Liquid now equals the buffer exactly; nothing more to do.
	recordsBefore := h.Journal().Len()
	require.NoError(h.Rebalance(ctx))
	require.Equal(recordsBefore, h.Journal().Len())
}

func TestRebalanceHysteresis(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)
	require.NoError(h.SetTargetBuffer(h.owner, 100*units.Token))

	// Excess within the dust threshold is deliberately left alone.
	require.NoError(h.asset.Mint(h.self, 100*units.Token+DustThreshold))
	require.NoError(h.Rebalance(ctx))
	require.Equal(100*units.Token+DustThreshold, h.LiquidBalance())
	require.Zero(h.vault.ShareBalance(h.self))

	// A shortfall the vault cannot more than cover is also left alone.
	require.NoError(h.asset.Burn(h.self, 50*units.Token))
	require.NoError(h.Rebalance(ctx))
	require.Equal(50*units.Token+DustThreshold, h.LiquidBalance())
}

// With totalBridged 1000 and managed value 1050, the skim pays
// 50 less retained dust, never the full 50.
func TestSkimYieldPaysExcess(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)
	require.NoError(h.OutboundTransfer(ctx, h.caller, 1_000*units.Token, channel.Options{}))

	// Yield accrues in the vault.
	require.NoError(h.asset.Mint(h.vault.Addr(), 50*units.Token))

	require.NoError(h.SkimYield(ctx))

	paid := 50*units.Token - DustRetention
	require.Equal(paid, h.asset.BalanceOf(h.beneficiary))
	require.Equal(1_000*units.Token, h.TotalBridged())
	require.Equal(events.YieldClaimed{
		Beneficiary: h.beneficiary,
		Amount:      paid,
	}, h.Journal().Last())

	// The managed value still covers the liability.
	managed, err := h.ManagedValue()
	require.NoError(err)
	require.GreaterOrEqual(managed, h.TotalBridged())
}

// A vault whose reported value transiently drops below the liability
// yields nothing to skim; it must not be treated as an error.
func TestSkimYieldUndershoot(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)
	require.NoError(h.OutboundTransfer(ctx, h.caller, 1_000*units.Token, channel.Options{}))

	// Simulate a vault-side loss.
	require.NoError(h.asset.Burn(h.vault.Addr(), 10*units.Token))

	require.NoError(h.SkimYield(ctx))
	require.Zero(h.asset.BalanceOf(h.beneficiary))
	require.Equal(1, h.Journal().Len()) // only the outbound transfer
}

func TestSkimYieldNothingManaged(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)
	require.NoError(h.SkimYield(ctx))
	require.Zero(h.Journal().Len())
}

func TestSkimYieldDustRetained(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)
	require.NoError(h.OutboundTransfer(ctx, h.caller, 1_000*units.Token, channel.Options{}))

	// Yield within the dust threshold is not worth paying out.
	require.NoError(h.asset.Mint(h.vault.Addr(), DustThreshold))

	require.NoError(h.SkimYield(ctx))
	require.Zero(h.asset.BalanceOf(h.beneficiary))
}

func TestSetTargetBuffer(t *testing.T) {
	require := require.New(t)

	h := newHarness(t)

	require.ErrorIs(h.SetTargetBuffer(h.caller, units.Token), ownable.ErrNotOwner)
	require.NoError(h.SetTargetBuffer(h.owner, 42*units.Token))
	require.Equal(42*units.Token, h.TargetBuffer())
	require.Equal(events.BufferUpdated{
		Previous: 0,
		Updated:  42 * units.Token,
	}, h.Journal().Last())
}

func TestSetBeneficiaryValidation(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)
	next := ids.GenerateTestShortID()

	require.ErrorIs(h.SetBeneficiary(ctx, h.caller, next), ownable.ErrNotOwner)
	require.ErrorIs(h.SetBeneficiary(ctx, h.owner, ids.ShortEmpty), ErrZeroBeneficiary)
	require.ErrorIs(h.SetBeneficiary(ctx, h.owner, h.beneficiary), ErrSameBeneficiary)

	require.NoError(h.SetBeneficiary(ctx, h.owner, next))
	require.Equal(next, h.Beneficiary())
	require.Equal(events.BeneficiaryUpdated{
		Previous: h.beneficiary,
		Updated:  next,
	}, h.Journal().Last())
}

// Switching beneficiaries skims first, so yield accrued under the old
// beneficiary is never misattributed to the new one.
func TestSetBeneficiarySkimsFirst(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)
	require.NoError(h.OutboundTransfer(ctx, h.caller, 1_000*units.Token, channel.Options{}))
	require.NoError(h.asset.Mint(h.vault.Addr(), 50*units.Token))

	next := ids.GenerateTestShortID()
	require.NoError(h.SetBeneficiary(ctx, h.owner, next))

	require.Equal(50*units.Token-DustRetention, h.asset.BalanceOf(h.beneficiary))
	require.Zero(h.asset.BalanceOf(next))

	records := h.Journal().List()
	require.Equal(events.KindYieldClaimed, records[len(records)-2].Kind())
	require.Equal(events.KindBeneficiaryUpdated, records[len(records)-1].Kind())
}

// The controller's books survive a restart on the same database.
func TestStatePersistence(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	h := newHarness(t)
	db := memdb.New()

	cfg := Config{
		Owner:                h.owner,
		SelfAddr:             h.self,
		Asset:                h.asset,
		Vault:                h.vault,
		Channel:              h.sender,
		CounterpartAddr:      h.counterpartAddr,
		CounterpartNetworkID: h.networkID,
		TargetBuffer:         0,
		Beneficiary:          h.beneficiary,
		DB:                   db,
	}
	c, err := New(cfg)
	require.NoError(err)

	require.NoError(c.OutboundTransfer(ctx, h.caller, 7*units.Token, channel.Options{}))
	require.NoError(c.SetTargetBuffer(h.owner, 100*units.Token))
	next := ids.GenerateTestShortID()
	require.NoError(c.SetBeneficiary(ctx, h.owner, next))

	reopened, err := New(cfg)
	require.NoError(err)
	require.Equal(7*units.Token, reopened.TotalBridged())
	require.Equal(100*units.Token, reopened.TargetBuffer())
	require.Equal(next, reopened.Beneficiary())
}
