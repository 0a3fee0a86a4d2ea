// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package payload defines the opaque message body exchanged between the
// representation ledger and the escrow reserve controller. The transport
// carries these bytes without interpreting them.
package payload

import (
	"errors"
	"math"

	"github.com/luxfi/codec"
	"github.com/luxfi/codec/linearcodec"
	"github.com/luxfi/ids"
)

const codecVersion = 0

var (
	ErrNilPayload = errors.New("nil payload bytes")

	c codec.Manager
)

func init() {
	c = codec.NewManager(math.MaxInt)
	lc := linearcodec.NewDefault()

	err := errors.Join(
		lc.RegisterType(&Transfer{}),
		c.RegisterCodec(codecVersion, lc),
	)
	if err != nil {
		panic(err)
	}
}

// Transfer instructs the receiving component to credit Amount to Recipient:
// a mint on the representation ledger, an escrow release on the origin side.
type Transfer struct {
	Recipient ids.ShortID `serialize:"true" json:"recipient"`
	Amount    uint64      `serialize:"true" json:"amount"`
}

// Bytes returns the canonical encoding of the transfer.
func (t *Transfer) Bytes() ([]byte, error) {
	return c.Marshal(codecVersion, t)
}

// ParseTransfer decodes a transfer payload.
func ParseTransfer(bytes []byte) (*Transfer, error) {
	if bytes == nil {
		return nil, ErrNilPayload
	}

	t := &Transfer{}
	if _, err := c.Unmarshal(bytes, t); err != nil {
		return nil, err
	}
	return t, nil
}
