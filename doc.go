// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package teleport is a two-sided asset bridge. The origin side
// (package escrow) locks the real asset and invests idle reserves in a
// yield vault; the destination side (package ledger) mints and burns a
// representation token one-for-one against the escrowed amount. The two
// sides exchange authenticated transfer messages over an asynchronous
// channel (package channel) and never share state directly.
//
// Under correct operation the representation supply equals the escrow
// liability after every delivered message.
package teleport
