package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type account struct {
	mu        sync.Mutex
	capacity  int
	reserved  int
	available bool
	// handles maps a reservation id to its quantity and whether it was released.
	handles map[string]*reservation
}

type reservation struct {
	quantity int
	released bool
}

// Memory is an in-process ledger. Each event is guarded by its own mutex, so
// operations on one event are serialized while different events proceed in parallel.
type Memory struct {
	mu       sync.RWMutex
	accounts map[int64]*account
}

func NewMemory() *Memory {
	return &Memory{accounts: make(map[int64]*account)}
}

// Open registers an event or updates its availability. Capacity of an existing event
// is only changed through SetCapacity.
func (m *Memory) Open(eventID int64, capacity int, available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acc, ok := m.accounts[eventID]; ok {
		acc.mu.Lock()
		acc.available = available
		acc.mu.Unlock()
		return
	}
	m.accounts[eventID] = &account{
		capacity:  capacity,
		available: available,
		handles:   make(map[string]*reservation),
	}
}

func (m *Memory) account(eventID int64) (*account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEvent, eventID)
	}
	return acc, nil
}

// Begin locks the event and returns a transaction whose changes become visible on Commit.
// The caller must call exactly one of Commit or Rollback.
func (m *Memory) Begin(ctx context.Context, eventID int64) (*MemoryTx, error) {
	acc, err := m.account(eventID)
	if err != nil {
		return nil, err
	}
	acc.mu.Lock()
	if err := ctx.Err(); err != nil {
		acc.mu.Unlock()
		return nil, err
	}
	return &MemoryTx{
		eventID:  eventID,
		acc:      acc,
		capacity: acc.capacity,
		reserved: acc.reserved,
		added:    make(map[string]int),
		released: make(map[string]bool),
	}, nil
}

func (m *Memory) Reserve(ctx context.Context, eventID int64, quantity int) (Handle, error) {
	tx, err := m.Begin(ctx, eventID)
	if err != nil {
		return Handle{}, err
	}
	h, err := tx.Reserve(ctx, eventID, quantity)
	if err != nil {
		tx.Rollback()
		return Handle{}, err
	}
	tx.Commit()
	return h, nil
}

func (m *Memory) Release(ctx context.Context, h Handle) error {
	tx, err := m.Begin(ctx, h.EventID)
	if err != nil {
		return err
	}
	if err := tx.Release(ctx, h); err != nil {
		tx.Rollback()
		return err
	}
	tx.Commit()
	return nil
}

func (m *Memory) Remaining(ctx context.Context, eventID int64) (int, error) {
	acc, err := m.account(eventID)
	if err != nil {
		return 0, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.capacity - acc.reserved, nil
}

// Snapshot returns the committed capacity and reserved units of an event.
func (m *Memory) Snapshot(eventID int64) (capacity, reserved int, err error) {
	acc, err := m.account(eventID)
	if err != nil {
		return 0, 0, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.capacity, acc.reserved, nil
}

func (m *Memory) SetCapacity(ctx context.Context, eventID int64, capacity int) error {
	tx, err := m.Begin(ctx, eventID)
	if err != nil {
		return err
	}
	if err := tx.SetCapacity(ctx, eventID, capacity); err != nil {
		tx.Rollback()
		return err
	}
	tx.Commit()
	return nil
}

// MemoryTx is a staged view of one event's account. It holds the event lock until
// Commit or Rollback and is not safe for use by multiple goroutines.
type MemoryTx struct {
	eventID  int64
	acc      *account
	capacity int
	reserved int
	added    map[string]int
	released map[string]bool
	done     bool
}

func (tx *MemoryTx) checkEvent(eventID int64) error {
	if tx.done {
		return fmt.Errorf("ledger transaction already finished")
	}
	if eventID != tx.eventID {
		return fmt.Errorf("ledger transaction for event %d cannot touch event %d", tx.eventID, eventID)
	}
	return nil
}

func (tx *MemoryTx) Reserve(_ context.Context, eventID int64, quantity int) (Handle, error) {
	if err := tx.checkEvent(eventID); err != nil {
		return Handle{}, err
	}
	if quantity <= 0 {
		return Handle{}, ErrInvalidQuantity
	}
	if !tx.acc.available {
		return Handle{}, ErrEventNotAvailable
	}
	if remaining := tx.capacity - tx.reserved; quantity > remaining {
		return Handle{}, &InsufficientCapacityError{EventID: eventID, Requested: quantity, Remaining: remaining}
	}

	h := Handle{ID: uuid.NewString(), EventID: eventID, Quantity: quantity}
	tx.reserved += quantity
	tx.added[h.ID] = quantity
	return h, nil
}

func (tx *MemoryTx) Release(_ context.Context, h Handle) error {
	if err := tx.checkEvent(h.EventID); err != nil {
		return err
	}
	if tx.released[h.ID] {
		return nil
	}
	if qty, ok := tx.added[h.ID]; ok {
		delete(tx.added, h.ID)
		tx.reserved -= qty
		return nil
	}
	r, ok := tx.acc.handles[h.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h.ID)
	}
	if r.released {
		return nil
	}
	tx.released[h.ID] = true
	tx.reserved -= r.quantity
	return nil
}

func (tx *MemoryTx) Remaining(_ context.Context, eventID int64) (int, error) {
	if err := tx.checkEvent(eventID); err != nil {
		return 0, err
	}
	return tx.capacity - tx.reserved, nil
}

func (tx *MemoryTx) SetCapacity(_ context.Context, eventID int64, capacity int) error {
	if err := tx.checkEvent(eventID); err != nil {
		return err
	}
	if capacity <= 0 {
		return ErrInvalidQuantity
	}
	if capacity < tx.reserved {
		return ErrCapacityBelowReserved
	}
	tx.capacity = capacity
	return nil
}

// Commit publishes the staged changes and unlocks the event.
func (tx *MemoryTx) Commit() {
	if tx.done {
		return
	}
	for id, qty := range tx.added {
		tx.acc.handles[id] = &reservation{quantity: qty}
	}
	for id := range tx.released {
		tx.acc.handles[id].released = true
	}
	tx.acc.capacity = tx.capacity
	tx.acc.reserved = tx.reserved
	tx.done = true
	tx.acc.mu.Unlock()
}

// Rollback discards the staged changes and unlocks the event.
func (tx *MemoryTx) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	tx.acc.mu.Unlock()
}

var (
	_ Ledger = (*Memory)(nil)
	_ Ledger = (*MemoryTx)(nil)
)
