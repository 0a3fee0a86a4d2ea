// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ownable implements a single-owner capability with a two-step
// handover. Components compose an Ownable rather than inheriting one.
// Renouncing ownership is deliberately unsupported: the bridge components
// must always have an owner able to retune buffers and beneficiaries.
package ownable

import (
	"errors"
	"sync"

	"github.com/luxfi/ids"
)

var (
	ErrNotOwner         = errors.New("caller is not the owner")
	ErrNotProposedOwner = errors.New("caller is not the proposed owner")
	ErrZeroOwner        = errors.New("owner must not be the zero address")
)

// Ownable tracks the current and proposed owner of a component.
type Ownable struct {
	mu sync.RWMutex

	owner    ids.ShortID
	proposed ids.ShortID
}

// New creates an Ownable bound to owner.
func New(owner ids.ShortID) (*Ownable, error) {
	if owner == ids.ShortEmpty {
		return nil, ErrZeroOwner
	}
	return &Ownable{owner: owner}, nil
}

// Owner returns the current owner.
func (o *Ownable) Owner() ids.ShortID {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.owner
}

// CheckOwner returns ErrNotOwner unless caller is the current owner.
func (o *Ownable) CheckOwner(caller ids.ShortID) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if caller != o.owner {
		return ErrNotOwner
	}
	return nil
}

// ProposeOwner nominates a new owner. Ownership does not move until the
// nominee calls AcceptOwner.
func (o *Ownable) ProposeOwner(caller, newOwner ids.ShortID) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if caller != o.owner {
		return ErrNotOwner
	}
	if newOwner == ids.ShortEmpty {
		return ErrZeroOwner
	}

	o.proposed = newOwner
	return nil
}

// AcceptOwner completes a proposed handover.
func (o *Ownable) AcceptOwner(caller ids.ShortID) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.proposed == ids.ShortEmpty || caller != o.proposed {
		return ErrNotProposedOwner
	}

	o.owner = o.proposed
	o.proposed = ids.ShortEmpty
	return nil
}
