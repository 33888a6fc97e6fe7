package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mlebedev/payflow/internal/engine"
	"github.com/mlebedev/payflow/internal/models"
)

// MemoryStore is an in-memory implementation of the service storage
// contract. It backs tests and local development; every method holds the
// store lock for its whole invocation, giving the same serialized,
// all-or-nothing behavior the Postgres repository gets from transactions.
type MemoryStore struct {
	mu        sync.Mutex
	nextID    int64
	users     map[string]*models.User // keyed by email
	balances  map[string]decimal.Decimal
	schedules map[string][]models.PaymentSchedule
	records   map[string]models.TransactionRecord
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*models.User),
		balances:  make(map[string]decimal.Decimal),
		schedules: make(map[string][]models.PaymentSchedule),
		records:   make(map[string]models.TransactionRecord),
	}
}

func (m *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[user.Email]; exists {
		return fmt.Errorf("failed to create user: email already registered")
	}
	m.nextID++
	user.ID = m.nextID
	u := *user
	m.users[user.Email] = &u
	return nil
}

func (m *MemoryStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, fmt.Errorf("user not found")
}

func (m *MemoryStore) FindUserByAccount(_ context.Context, account string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.AccountID == account {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user not found")
}

func (m *MemoryStore) Balance(_ context.Context, account string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.balances[account]; ok {
		return b, nil
	}
	return decimal.Zero, nil
}

func (m *MemoryStore) Deposit(_ context.Context, account string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = m.balances[account].Add(amount)
	return nil
}

func (m *MemoryStore) Schedules(_ context.Context, owner string) ([]models.PaymentSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PaymentSchedule(nil), m.schedules[owner]...), nil
}

func (m *MemoryStore) AppendSchedule(_ context.Context, owner string, s models.PaymentSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[owner] = append(m.schedules[owner], s)
	return nil
}

func (m *MemoryStore) RemoveSchedule(_ context.Context, owner string, index int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.schedules[owner]
	if index < 0 || index >= len(seq) {
		return false, nil
	}
	m.schedules[owner] = append(seq[:index], seq[index+1:]...)
	return true, nil
}

func (m *MemoryStore) LastTransaction(_ context.Context, owner string) (*models.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[owner]; ok {
		cp := rec
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryStore) RunSettlement(_ context.Context, pass func([]engine.OwnerState) engine.PassResult) (engine.PassResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var owners []engine.OwnerState
	for owner, seq := range m.schedules {
		owners = append(owners, engine.OwnerState{
			Owner:     owner,
			Balance:   m.balances[owner],
			Schedules: append([]models.PaymentSchedule(nil), seq...),
		})
	}

	res := pass(owners)

	for _, st := range res.Owners {
		m.balances[st.Owner] = st.Balance
		m.schedules[st.Owner] = st.Schedules
	}
	for owner, rec := range res.Records {
		m.records[owner] = rec
	}
	return res, nil
}
