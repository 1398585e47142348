// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch routes parsed textgroups into named inventories.
//
// Inventories are InventoryRoot nodes hanging under a single root. Each
// textgroup is placed under exactly one inventory: the first registered
// rule whose predicate accepts it wins, otherwise the default inventory
// takes it. Inventories partition the corpus but share one store;
// scoping a lookup to an inventory is a containment check.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/nautilus/services/corpus/collection"
)

var (
	// ErrUndispatched indicates a textgroup no rule claimed while no
	// default inventory exists.
	ErrUndispatched = errors.New("undispatched text")

	// ErrUnknownInventory indicates a rule or scope naming an inventory
	// that was never registered.
	ErrUnknownInventory = errors.New("unknown inventory")
)

// Identities and label of the hierarchy built when nothing else is
// configured.
const (
	RootID           = "defaultTic"
	DefaultInventory = "/default"
	DefaultLabel     = "Default collection"
	DefaultLang      = "eng"
)

// Predicate decides whether a textgroup read from path belongs to an
// inventory. node is never nil; path may be empty.
type Predicate func(node *collection.Node, path string) bool

// Rule assigns textgroups accepted by Match to Inventory.
type Rule struct {
	Inventory string
	Match     Predicate
}

// Inventory is a named partition of the corpus.
type Inventory struct {
	Name   string
	Labels []collection.Label
}

// Dispatcher holds the inventory registry, the ordered rules and the
// ownership of every dispatched textgroup.
//
// Thread Safety: Safe for concurrent use. Ingestion only dispatches
// during its sequential finalization, so contention is not expected.
type Dispatcher struct {
	mu          sync.RWMutex
	root        string
	inventories []Inventory
	rules       []Rule
	fallback    string
	owners      map[string]string
	logger      *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRoot overrides the root identity.
func WithRoot(id string) Option {
	return func(d *Dispatcher) {
		if id != "" {
			d.root = id
		}
	}
}

// WithInventory registers a named inventory.
func WithInventory(name string, labels ...collection.Label) Option {
	return func(d *Dispatcher) {
		d.addInventory(name, labels)
	}
}

// WithDefault registers name as an inventory and makes it the fallback
// for textgroups no rule claims.
func WithDefault(name string, labels ...collection.Label) Option {
	return func(d *Dispatcher) {
		d.addInventory(name, labels)
		d.fallback = name
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a Dispatcher with no rules.
//
// Without WithDefault there is no fallback: Dispatch returns
// ErrUndispatched for textgroups no rule claims.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		root:   RootID,
		owners: make(map[string]string),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Default creates the dispatcher used when none is configured: root
// "defaultTic" with the single default inventory "/default".
func Default(opts ...Option) *Dispatcher {
	base := []Option{WithDefault(DefaultInventory, collection.Label{Lang: DefaultLang, Text: DefaultLabel})}
	return New(append(base, opts...)...)
}

func (d *Dispatcher) addInventory(name string, labels []collection.Label) {
	for i, inv := range d.inventories {
		if inv.Name == name {
			d.inventories[i].Labels = collection.UnionLabels(inv.Labels, labels)
			return
		}
	}
	d.inventories = append(d.inventories, Inventory{Name: name, Labels: labels})
}

// Register appends a rule. Rules are evaluated in registration order.
//
// Outputs:
//
//	error - ErrUnknownInventory if inventory was not registered.
func (d *Dispatcher) Register(inventory string, match Predicate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.hasInventory(inventory) {
		return fmt.Errorf("%w: %s", ErrUnknownInventory, inventory)
	}
	if match == nil {
		return fmt.Errorf("rule for %s has no predicate", inventory)
	}
	d.rules = append(d.rules, Rule{Inventory: inventory, Match: match})
	return nil
}

func (d *Dispatcher) hasInventory(name string) bool {
	for _, inv := range d.inventories {
		if inv.Name == name {
			return true
		}
	}
	return false
}

// Root returns the root identity.
func (d *Dispatcher) Root() string {
	return d.root
}

// DefaultInventory returns the fallback inventory, or "" if none.
func (d *Dispatcher) DefaultInventory() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fallback
}

// Inventories returns the registered inventories in registration order.
func (d *Dispatcher) Inventories() []Inventory {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Inventory, len(d.inventories))
	copy(out, d.inventories)
	return out
}

// Nodes returns the root and one InventoryRoot node per inventory,
// parents first, ready to be put into a store.
func (d *Dispatcher) Nodes() []*collection.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()

	nodes := []*collection.Node{{ID: d.root, Kind: collection.KindInventoryRoot}}
	for _, inv := range d.inventories {
		nodes = append(nodes, &collection.Node{
			ID:     inv.Name,
			Kind:   collection.KindInventoryRoot,
			Parent: d.root,
			Labels: append([]collection.Label(nil), inv.Labels...),
		})
	}
	return nodes
}

// Dispatch places a textgroup into an inventory.
//
// Description:
//
//	Evaluates rules in registration order; the first match wins. With no
//	match the default inventory is used. The chosen inventory becomes
//	node.Parent and is recorded as the group's owner. A group already
//	dispatched keeps its first owner, so dispatching the same identity
//	twice is stable.
//
// Inputs:
//
//	node - The textgroup. Its Parent is overwritten.
//	path - The descriptor path the group was read from.
//
// Outputs:
//
//	string - The inventory name.
//	error - ErrUndispatched (wrapped) when nothing claims the group.
func (d *Dispatcher) Dispatch(node *collection.Node, path string) (string, error) {
	if node == nil {
		return "", fmt.Errorf("%w: nil node", ErrUndispatched)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if owner, ok := d.owners[node.ID]; ok {
		node.Parent = owner
		return owner, nil
	}

	inventory := d.fallback
	for _, r := range d.rules {
		if r.Match(node, path) {
			inventory = r.Inventory
			break
		}
	}
	if inventory == "" {
		d.logger.Error("text group was not dispatched",
			slog.String("id", node.ID),
			slog.String("path", path))
		return "", fmt.Errorf("%w: %s", ErrUndispatched, node.ID)
	}

	d.owners[node.ID] = inventory
	node.Parent = inventory
	d.logger.Debug("text group dispatched",
		slog.String("id", node.ID),
		slog.String("inventory", inventory))
	return inventory, nil
}

// Owner returns the inventory a textgroup was dispatched to.
func (d *Dispatcher) Owner(groupID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	inv, ok := d.owners[groupID]
	return inv, ok
}

// Reset forgets all ownership. Rules and inventories stay.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owners = make(map[string]string)
}

// InInventory reports whether id lives under inventory in s.
//
// Outputs:
//
//	bool - True when id is inventory itself or one of its descendants.
//	error - ErrUnknownInventory if inventory was never registered, or a
//	store error.
func (d *Dispatcher) InInventory(ctx context.Context, s collection.Store, id, inventory string) (bool, error) {
	d.mu.RLock()
	known := d.hasInventory(inventory)
	d.mu.RUnlock()
	if !known {
		return false, fmt.Errorf("%w: %s", ErrUnknownInventory, inventory)
	}
	if id == inventory {
		return true, nil
	}
	return s.Contains(ctx, id, inventory)
}
