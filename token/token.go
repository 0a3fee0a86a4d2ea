// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package token implements a fungible balance book: per-account balances,
// allowances, and a running total supply. Both sides of the bridge compose
// one of these rather than inheriting token behavior.
package token

import (
	"errors"
	"sync"

	"github.com/luxfi/ids"
	safemath "github.com/luxfi/math"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrSupplyOverflow        = errors.New("total supply overflow")
)

// Token is a mutex-guarded fungible balance book. The zero value is not
// usable; construct with New.
type Token struct {
	mu sync.RWMutex

	name        string
	balances    map[ids.ShortID]uint64
	allowances  map[ids.ShortID]map[ids.ShortID]uint64
	totalSupply uint64
}

// New creates an empty balance book named for logging and debugging only.
func New(name string) *Token {
	return &Token{
		name:       name,
		balances:   make(map[ids.ShortID]uint64),
		allowances: make(map[ids.ShortID]map[ids.ShortID]uint64),
	}
}

// Name returns the book's debug name.
func (t *Token) Name() string {
	return t.name
}

// TotalSupply returns the sum of all minted minus burned units.
func (t *Token) TotalSupply() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.totalSupply
}

// BalanceOf returns the balance held by addr.
func (t *Token) BalanceOf(addr ids.ShortID) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.balances[addr]
}

// Mint credits amount new units to addr.
func (t *Token) Mint(addr ids.ShortID, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	newSupply, err := safemath.Add(t.totalSupply, amount)
	if err != nil {
		return ErrSupplyOverflow
	}

	t.totalSupply = newSupply
	t.balances[addr] += amount
	return nil
}

// Burn destroys amount units held by addr.
func (t *Token) Burn(addr ids.ShortID, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	balance := t.balances[addr]
	if balance < amount {
		return ErrInsufficientBalance
	}

	t.balances[addr] = balance - amount
	t.totalSupply -= amount
	return nil
}

// Transfer moves amount from one account to another.
func (t *Token) Transfer(from, to ids.ShortID, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.transfer(from, to, amount)
}

// Approve sets spender's allowance over owner's balance. A repeated call
// overwrites the previous allowance.
func (t *Token) Approve(owner, spender ids.ShortID, amount uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	approvals, ok := t.allowances[owner]
	if !ok {
		approvals = make(map[ids.ShortID]uint64)
		t.allowances[owner] = approvals
	}
	approvals[spender] = amount
}

// Allowance returns what spender may still pull from owner.
func (t *Token) Allowance(owner, spender ids.ShortID) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.allowances[owner][spender]
}

// TransferFrom moves amount from one account to another on spender's
// authority, consuming allowance.
func (t *Token) TransferFrom(spender, from, to ids.ShortID, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowance := t.allowances[from][spender]
	if allowance < amount {
		return ErrInsufficientAllowance
	}

	if err := t.transfer(from, to, amount); err != nil {
		return err
	}

	t.allowances[from][spender] = allowance - amount
	return nil
}

// transfer assumes t.mu is held.
func (t *Token) transfer(from, to ids.ShortID, amount uint64) error {
	balance := t.balances[from]
	if balance < amount {
		return ErrInsufficientBalance
	}

	t.balances[from] = balance - amount
	t.balances[to] += amount
	return nil
}
