// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package escrow

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
)

// Database keys for the controller's durable state. The asset and vault
// positions live on their own ledgers; only the controller's own book
// needs to survive a restart.
var (
	totalBridgedKey = []byte("total_bridged")
	targetBufferKey = []byte("target_buffer")
	beneficiaryKey  = []byte("beneficiary")
)

func putUint64(db database.Database, key []byte, val uint64) error {
	bytes := make([]byte, 8)
	binary.BigEndian.PutUint64(bytes, val)
	return db.Put(key, bytes)
}

func getUint64(db database.Database, key []byte) (uint64, error) {
	bytes, err := db.Get(key)
	if err != nil {
		return 0, err
	}
	if len(bytes) != 8 {
		return 0, fmt.Errorf("unexpected length %d for key %q", len(bytes), key)
	}
	return binary.BigEndian.Uint64(bytes), nil
}

func putShortID(db database.Database, key []byte, id ids.ShortID) error {
	return db.Put(key, id[:])
}

func getShortID(db database.Database, key []byte) (ids.ShortID, error) {
	bytes, err := db.Get(key)
	if err != nil {
		return ids.ShortEmpty, err
	}
	return ids.ToShortID(bytes)
}

// loadState restores persisted fields, keeping the configured defaults for
// anything not yet written.
func (c *Controller) loadState() error {
	totalBridged, err := getUint64(c.db, totalBridgedKey)
	switch {
	case err == nil:
		c.totalBridged = totalBridged
	case !errors.Is(err, database.ErrNotFound):
		return err
	}

	targetBuffer, err := getUint64(c.db, targetBufferKey)
	switch {
	case err == nil:
		c.targetBuffer = targetBuffer
	case !errors.Is(err, database.ErrNotFound):
		return err
	}

	beneficiary, err := getShortID(c.db, beneficiaryKey)
	switch {
	case err == nil:
		c.beneficiary = beneficiary
	case !errors.Is(err, database.ErrNotFound):
		return err
	}

	return nil
}
