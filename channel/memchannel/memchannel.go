// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package memchannel is an in-process message transport used by tests and
// the demo daemon. Messages are wrapped in warp unsigned-message envelopes
// carrying the sender's network id and address, queued, and delivered when
// the owner pumps the channel. Delivery order is FIFO and each message is
// delivered at most once.
package memchannel

import (
	"context"
	"errors"
	"sync"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/warp"

	"github.com/luxfi/teleport/channel"
)

var (
	ErrSendDisabled      = errors.New("transport send disabled")
	ErrEndpointTaken     = errors.New("endpoint already registered")
	ErrUnknownEndpoint   = errors.New("no receiver registered for endpoint")
	ErrNoQueuedMessages  = errors.New("no queued messages")
	ErrNilReceiver       = errors.New("nil receiver")
	errEnvelopeCorrupted = errors.New("envelope corrupted")
)

type endpoint struct {
	networkID uint32
	addr      ids.ID
}

type queued struct {
	dest     endpoint
	envelope *warp.UnsignedMessage
}

// Channel is the shared in-memory transport. Components do not hold a
// *Channel directly; they hold a Port opened on it.
type Channel struct {
	mu sync.Mutex

	log          log.Logger
	ports        map[endpoint]*Port
	queue        []queued
	sendDisabled bool
}

// New creates an empty transport.
func New(logger log.Logger) *Channel {
	if logger == nil {
		logger = log.NoLog{}
	}
	return &Channel{
		log:   logger,
		ports: make(map[endpoint]*Port),
	}
}

// Port is a component's bound handle on the transport. It stamps every
// outbound message with the component's own endpoint, which is how the
// transport guarantees origin authenticity.
type Port struct {
	ch   *Channel
	self endpoint
	recv channel.Receiver
}

var _ channel.Sender = (*Port)(nil)

// Open registers a receiver at (networkID, addr) and returns its bound
// sender handle.
func (c *Channel) Open(networkID uint32, addr ids.ID, recv channel.Receiver) (*Port, error) {
	if recv == nil {
		return nil, ErrNilReceiver
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	self := endpoint{networkID: networkID, addr: addr}
	if _, ok := c.ports[self]; ok {
		return nil, ErrEndpointTaken
	}

	p := &Port{
		ch:   c,
		self: self,
		recv: recv,
	}
	c.ports[self] = p
	return p, nil
}

// SetSendDisabled makes every subsequent Send fail, for exercising the
// callers' rollback paths.
func (c *Channel) SetSendDisabled(disabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sendDisabled = disabled
}

// Send implements channel.Sender.
func (p *Port) Send(
	ctx context.Context,
	destinationNetworkID uint32,
	destinationAddr ids.ID,
	forceSync bool,
	payload []byte,
) error {
	c := p.ch

	c.mu.Lock()
	if c.sendDisabled {
		c.mu.Unlock()
		return ErrSendDisabled
	}

	envelope, err := warp.NewUnsignedMessage(p.self.networkID, p.self.addr, payload)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	msg := queued{
		dest:     endpoint{networkID: destinationNetworkID, addr: destinationAddr},
		envelope: envelope,
	}

	if !forceSync {
		c.queue = append(c.queue, msg)
		c.mu.Unlock()
		c.log.Debug("queued message",
			log.Uint32("destinationNetworkID", destinationNetworkID),
			log.Stringer("destinationAddr", destinationAddr),
			log.Int("payloadLen", len(payload)),
		)
		return nil
	}
	c.mu.Unlock()

	return c.deliver(ctx, msg)
}

// DeliverNext pops and delivers the oldest queued message. Returns
// ErrNoQueuedMessages when the queue is empty.
func (c *Channel) DeliverNext(ctx context.Context) error {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return ErrNoQueuedMessages
	}
	msg := c.queue[0]
	c.queue = c.queue[1:]
	c.mu.Unlock()

	return c.deliver(ctx, msg)
}

// DeliverAll drains the queue, stopping at the first delivery error. It
// returns the number of messages delivered.
func (c *Channel) DeliverAll(ctx context.Context) (int, error) {
	delivered := 0
	for {
		err := c.DeliverNext(ctx)
		switch {
		case errors.Is(err, ErrNoQueuedMessages):
			return delivered, nil
		case err != nil:
			return delivered, err
		}
		delivered++
	}
}

// QueueLen returns the number of undelivered messages.
func (c *Channel) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.queue)
}

func (c *Channel) deliver(ctx context.Context, msg queued) error {
	c.mu.Lock()
	port, ok := c.ports[msg.dest]
	c.mu.Unlock()
	if !ok {
		return ErrUnknownEndpoint
	}

	envelope := msg.envelope
	if envelope == nil {
		return errEnvelopeCorrupted
	}

	// The recipient's own Port is passed as the caller so the component
	// can verify it is being invoked through its bound transport handle.
	return port.recv.InboundReceive(
		ctx,
		port,
		envelope.SourceChainID,
		envelope.NetworkID,
		envelope.Payload,
	)
}
