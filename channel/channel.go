// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package channel defines the narrow surface of the cross-ledger message
// transport. The transport is external: it guarantees authenticity of the
// origin metadata and at-most-once delivery; this package only names the
// contract the bridge components consume.
package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/luxfi/ids"
)

var ErrRelayUnbound = errors.New("relay not bound to a receiver")

// Sender is the outbound half of the transport, bound to a fixed origin
// endpoint. Once Send returns nil the message cannot be retracted, so the
// caller must be side-effect-complete before invoking it.
type Sender interface {
	Send(
		ctx context.Context,
		destinationNetworkID uint32,
		destinationAddr ids.ID,
		forceSync bool,
		payload []byte,
	) error
}

// Receiver is the inbound entry point a component exposes to the transport.
// caller is the Sender handle the component was constructed with; a
// component must reject any invocation whose caller is not its own bound
// handle, and any origin that is not its fixed counterpart.
type Receiver interface {
	InboundReceive(
		ctx context.Context,
		caller Sender,
		originAddr ids.ID,
		originNetworkID uint32,
		payload []byte,
	) error
}

// Options carries per-send delivery options.
type Options struct {
	// ForceSync asks the transport to deliver before Send returns, where
	// the transport supports it. Purely advisory.
	ForceSync bool
}

var _ Receiver = (*Relay)(nil)

// Relay is a Receiver bound after the fact. A component needs its Sender
// handle at construction time, but a transport hands the Sender out only
// when the receiver is registered; opening the endpoint with a Relay and
// binding the component afterwards breaks that cycle.
type Relay struct {
	mu   sync.Mutex
	recv Receiver
}

// Bind sets the receiver inbound messages are forwarded to.
func (r *Relay) Bind(recv Receiver) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.recv = recv
}

// InboundReceive implements Receiver. Messages arriving before Bind fail
// with ErrRelayUnbound.
func (r *Relay) InboundReceive(
	ctx context.Context,
	caller Sender,
	originAddr ids.ID,
	originNetworkID uint32,
	payload []byte,
) error {
	r.mu.Lock()
	recv := r.recv
	r.mu.Unlock()

	if recv == nil {
		return ErrRelayUnbound
	}
	return recv.InboundReceive(ctx, caller, originAddr, originNetworkID, payload)
}
