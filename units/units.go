// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package units defines the denominations of the bridged reserve asset.
package units

// The reserve asset uses 6 decimals, so a uint64 book can represent
// ~18.4 trillion whole units without overflow.
const (
	MicroToken uint64 = 1                 // Base unit - 0.000001 token
	MilliToken uint64 = 1000 * MicroToken // 0.001 token
	Token      uint64 = 1000 * MilliToken // 1 token = 10^6 microtokens
	KiloToken  uint64 = 1000 * Token
	MegaToken  uint64 = 1000 * KiloToken
)
