// Package memstore keeps the whole ledger in process memory. It backs
// STORE=memory runs and integration tests with the same repository contracts
// as the Postgres implementations.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
)

type mappingKey struct {
	company uuid.UUID
	key     mappings.Key
}

type linkKey struct {
	company uuid.UUID
	source  journals.SourceType
	id      string
}

type levelKey struct {
	product  uuid.UUID
	location string
}

type state struct {
	accounts  map[uuid.UUID]accounts.Account
	mappings  map[mappingKey]mappings.AccountMapping
	entries   map[uuid.UUID]journals.JournalEntry
	links     map[linkKey]uuid.UUID
	products  map[uuid.UUID]inventory.Product
	levels    map[levelKey]inventory.StockLevel
	movements []inventory.Movement
	documents map[uuid.UUID]billing.Document
	rates     []fx.Rate
	rateSeq   int64
}

func newState() *state {
	return &state{
		accounts:  make(map[uuid.UUID]accounts.Account),
		mappings:  make(map[mappingKey]mappings.AccountMapping),
		entries:   make(map[uuid.UUID]journals.JournalEntry),
		links:     make(map[linkKey]uuid.UUID),
		products:  make(map[uuid.UUID]inventory.Product),
		levels:    make(map[levelKey]inventory.StockLevel),
		documents: make(map[uuid.UUID]billing.Document),
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// clone copies the containers. Stored values are replaced, never mutated in
// place, so a shallow copy of each map is a full snapshot.
func (s *state) clone() *state {
	return &state{
		accounts:  cloneMap(s.accounts),
		mappings:  cloneMap(s.mappings),
		entries:   cloneMap(s.entries),
		links:     cloneMap(s.links),
		products:  cloneMap(s.products),
		levels:    cloneMap(s.levels),
		movements: append([]inventory.Movement(nil), s.movements...),
		documents: cloneMap(s.documents),
		rates:     append([]fx.Rate(nil), s.rates...),
		rateSeq:   s.rateSeq,
	}
}

// Store holds every repository's data. Transactions are serialised and roll
// back by restoring a snapshot; calls made outside a transaction run as a
// transaction of their own.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data *state
}

func New() *Store {
	return &Store{data: newState()}
}

type txMarker struct{}

func (s *Store) inTx(ctx context.Context) bool {
	held, _ := ctx.Value(txMarker{}).(*Store)
	return held == s
}

// InTx runs fn in a transaction, joining one already open on ctx.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txMarker{}, s)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// read runs fn against the current state.
func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if !s.inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// write runs fn atomically: inside the caller's transaction, or in its own.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	return s.InTx(ctx, func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return fn(s.data)
	})
}

// Accounts returns the account repository view.
func (s *Store) Accounts() accounts.Repository { return accountRepo{s} }

// Mappings returns the account mapping repository view.
func (s *Store) Mappings() mappings.Repository { return mappingRepo{s} }

// Journals returns the journal repository view.
func (s *Store) Journals() journals.Repository { return journalRepo{s} }

// Balances returns the posted-line and materialized balance view.
func (s *Store) Balances() balances.Repository { return balanceRepo{s} }

// Inventory returns the product and stock repository view.
func (s *Store) Inventory() inventory.Repository { return inventoryRepo{s} }

// Documents returns the billing document repository view.
func (s *Store) Documents() billing.Repository { return documentRepo{s} }

// Rates returns the exchange rate repository view.
func (s *Store) Rates() fx.Repository { return rateRepo{s} }
