// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package events defines the externally observable records both bridge
// components append while mutating state. Off-chain indexers reconstruct
// ledger state from these records, so field order and whether a running
// total reflects pre- or post-mutation state are part of the protocol and
// must not change.
package events

import (
	"sync"

	"github.com/luxfi/ids"
)

// Kind discriminates journal records.
type Kind uint8

const (
	KindTransferInitiated Kind = iota
	KindTransferClaimed
	KindBufferUpdated
	KindBeneficiaryUpdated
	KindRebalanced
	KindYieldClaimed
)

func (k Kind) String() string {
	switch k {
	case KindTransferInitiated:
		return "transfer_initiated"
	case KindTransferClaimed:
		return "transfer_claimed"
	case KindBufferUpdated:
		return "buffer_updated"
	case KindBeneficiaryUpdated:
		return "beneficiary_updated"
	case KindRebalanced:
		return "rebalanced"
	case KindYieldClaimed:
		return "yield_claimed"
	default:
		return "unknown"
	}
}

// Record is implemented by every journal entry type.
type Record interface {
	Kind() Kind
}

// TransferInitiated records an outbound transfer. On the representation
// ledger Total is the supply BEFORE the burn; on the escrow side it is the
// liability AFTER the increment.
type TransferInitiated struct {
	Actor  ids.ShortID `json:"actor"`
	Amount uint64      `json:"amount"`
	Total  uint64      `json:"total"`
}

func (TransferInitiated) Kind() Kind { return KindTransferInitiated }

// TransferClaimed records an applied inbound transfer. On the
// representation ledger Total is the supply BEFORE the mint; on the escrow
// side it is the liability AFTER the decrement.
type TransferClaimed struct {
	Recipient ids.ShortID `json:"recipient"`
	Amount    uint64      `json:"amount"`
	Total     uint64      `json:"total"`
}

func (TransferClaimed) Kind() Kind { return KindTransferClaimed }

// BufferUpdated records an owner change of the escrow target buffer.
type BufferUpdated struct {
	Previous uint64 `json:"previous"`
	Updated  uint64 `json:"updated"`
}

func (BufferUpdated) Kind() Kind { return KindBufferUpdated }

// BeneficiaryUpdated records an owner change of the yield beneficiary.
type BeneficiaryUpdated struct {
	Previous ids.ShortID `json:"previous"`
	Updated  ids.ShortID `json:"updated"`
}

func (BeneficiaryUpdated) Kind() Kind { return KindBeneficiaryUpdated }

// Rebalanced records a buffer rebalance. Exactly one of Deposited or
// Withdrawn is non-zero.
type Rebalanced struct {
	Deposited uint64 `json:"deposited"`
	Withdrawn uint64 `json:"withdrawn"`
}

func (Rebalanced) Kind() Kind { return KindRebalanced }

// YieldClaimed records a yield skim to the beneficiary.
type YieldClaimed struct {
	Beneficiary ids.ShortID `json:"beneficiary"`
	Amount      uint64      `json:"amount"`
}

func (YieldClaimed) Kind() Kind { return KindYieldClaimed }

// Journal is an append-only, mutex-guarded record log.
type Journal struct {
	mu      sync.RWMutex
	records []Record
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Append adds a record to the end of the journal.
func (j *Journal) Append(r Record) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.records = append(j.records, r)
}

// Len returns the number of records appended so far.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return len(j.records)
}

// List returns a copy of all records in append order.
func (j *Journal) List() []Record {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Record, len(j.records))
	copy(out, j.records)
	return out
}

// Last returns the most recent record, or nil if the journal is empty.
func (j *Journal) Last() Record {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if len(j.records) == 0 {
		return nil
	}
	return j.records[len(j.records)-1]
}
