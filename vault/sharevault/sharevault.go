// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sharevault implements vault.Vault with proportional share
// pricing over a fungible asset book. Yield accrues whenever the vault's
// asset balance grows without new shares being minted (e.g. a reward
// credit to the vault account), which raises the redeemable value of every
// outstanding share.
//
// Deposits and withdrawals can be paused independently to reproduce the
// partial-failure modes of a real reserve.
package sharevault

import (
	"context"
	"errors"
	"sync"

	"github.com/luxfi/ids"
	safemath "github.com/luxfi/math"

	"github.com/luxfi/teleport/vault"
)

var (
	ErrDepositsPaused     = errors.New("vault deposits paused")
	ErrWithdrawalsPaused  = errors.New("vault withdrawals paused")
	ErrZeroShares         = errors.New("deposit would mint zero shares")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInsufficientAssets = errors.New("insufficient vault assets")

	_ vault.Vault = (*Vault)(nil)
)

// Vault is a mutex-guarded share-priced reserve.
type Vault struct {
	mu sync.RWMutex

	asset vault.Asset
	// addr is the vault's own account on the asset book; its balance is
	// the vault's total assets.
	addr ids.ShortID

	shares      map[ids.ShortID]uint64
	totalShares uint64

	depositsPaused    bool
	withdrawalsPaused bool
}

// New creates an empty vault holding its assets at addr.
func New(asset vault.Asset, addr ids.ShortID) *Vault {
	return &Vault{
		asset:  asset,
		addr:   addr,
		shares: make(map[ids.ShortID]uint64),
	}
}

// Addr returns the vault's asset account.
func (v *Vault) Addr() ids.ShortID {
	return v.addr
}

// TotalAssets returns the asset value backing all shares.
func (v *Vault) TotalAssets() uint64 {
	return v.asset.BalanceOf(v.addr)
}

// SetDepositsPaused toggles the deposit failure mode.
func (v *Vault) SetDepositsPaused(paused bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.depositsPaused = paused
}

// SetWithdrawalsPaused toggles the withdrawal failure mode.
func (v *Vault) SetWithdrawalsPaused(paused bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.withdrawalsPaused = paused
}

// Deposit implements vault.Vault.
func (v *Vault) Deposit(ctx context.Context, assets uint64, owner ids.ShortID) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.depositsPaused {
		return 0, ErrDepositsPaused
	}

	shares, err := v.convertToShares(assets)
	if err != nil {
		return 0, err
	}
	if shares == 0 {
		return 0, ErrZeroShares
	}

	if err := v.asset.Transfer(owner, v.addr, assets); err != nil {
		return 0, err
	}

	v.shares[owner] += shares
	v.totalShares += shares
	return shares, nil
}

// Withdraw implements vault.Vault.
func (v *Vault) Withdraw(ctx context.Context, assets uint64, receiver, owner ids.ShortID) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.withdrawalsPaused {
		return 0, ErrWithdrawalsPaused
	}

	totalAssets := v.asset.BalanceOf(v.addr)
	if totalAssets < assets {
		return 0, ErrInsufficientAssets
	}

	shares, err := v.convertToSharesUp(assets, totalAssets)
	if err != nil {
		return 0, err
	}
	if shares > v.shares[owner] {
		return 0, ErrInsufficientShares
	}

	if err := v.asset.Transfer(v.addr, receiver, assets); err != nil {
		return 0, err
	}

	v.shares[owner] -= shares
	v.totalShares -= shares
	return shares, nil
}

// PreviewRedeem implements vault.Vault.
func (v *Vault) PreviewRedeem(shares uint64) uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.totalShares == 0 {
		return 0
	}

	product, err := safemath.Mul(shares, v.asset.BalanceOf(v.addr))
	if err != nil {
		// Saturate rather than lie low: the redeemable value of a share
		// position never shrinks because the product got large.
		return v.asset.BalanceOf(v.addr)
	}
	return product / v.totalShares
}

// ShareBalance implements vault.Vault.
func (v *Vault) ShareBalance(owner ids.ShortID) uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.shares[owner]
}

// convertToShares floors, so depositors cannot mint value. Assumes v.mu
// is held.
func (v *Vault) convertToShares(assets uint64) (uint64, error) {
	totalAssets := v.asset.BalanceOf(v.addr)
	if v.totalShares == 0 || totalAssets == 0 {
		return assets, nil
	}

	product, err := safemath.Mul(assets, v.totalShares)
	if err != nil {
		return 0, err
	}
	return product / totalAssets, nil
}

// convertToSharesUp ceils, so withdrawers cannot leave shares overpriced.
// Assumes v.mu is held.
func (v *Vault) convertToSharesUp(assets, totalAssets uint64) (uint64, error) {
	if v.totalShares == 0 {
		return 0, ErrInsufficientShares
	}
	if totalAssets == 0 {
		return 0, ErrInsufficientAssets
	}

	product, err := safemath.Mul(assets, v.totalShares)
	if err != nil {
		return 0, err
	}
	return (product + totalAssets - 1) / totalAssets, nil
}
