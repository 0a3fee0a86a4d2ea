// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vault defines the surface of the external yield reserve the
// escrow controller invests through. Share pricing and deposit limits are
// the vault's own business; the controller only consumes this contract.
package vault

import (
	"context"

	"github.com/luxfi/ids"
)

// Vault is a share-based yield reserve. Deposit and Withdraw are
// denominated in assets; both return the number of shares moved.
type Vault interface {
	// Deposit invests assets on behalf of owner and credits owner with
	// shares.
	Deposit(ctx context.Context, assets uint64, owner ids.ShortID) (shares uint64, err error)

	// Withdraw redeems enough of owner's shares to send exactly assets to
	// receiver.
	Withdraw(ctx context.Context, assets uint64, receiver, owner ids.ShortID) (shares uint64, err error)

	// PreviewRedeem returns the asset value currently redeemable for
	// shares.
	PreviewRedeem(shares uint64) uint64

	// ShareBalance returns the shares held by owner.
	ShareBalance(owner ids.ShortID) uint64
}

// Asset is the minimal fungible-transfer surface a vault implementation
// needs over the underlying reserve asset.
type Asset interface {
	Transfer(from, to ids.ShortID, amount uint64) error
	BalanceOf(addr ids.ShortID) uint64
}
