// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package payload

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func TestTransferRoundTrip(t *testing.T) {
	require := require.New(t)

	in := &Transfer{
		Recipient: ids.GenerateTestShortID(),
		Amount:    123_456_789,
	}

	bytes, err := in.Bytes()
	require.NoError(err)

	out, err := ParseTransfer(bytes)
	require.NoError(err)
	require.Equal(in, out)
}

func TestParseNilPayload(t *testing.T) {
	require := require.New(t)

	_, err := ParseTransfer(nil)
	require.ErrorIs(err, ErrNilPayload)
}

func TestParseGarbage(t *testing.T) {
	require := require.New(t)

	_, err := ParseTransfer([]byte{0xff, 0x00, 0xba, 0xad})
	require.Error(err)
}
