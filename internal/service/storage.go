package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mlebedev/payflow/internal/engine"
	"github.com/mlebedev/payflow/internal/models"
)

// Storage is the durable store behind the service. The Postgres repository
// implements it in production; tests use an in-memory implementation.
// Every method is atomic with respect to the others.
type Storage interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByAccount(ctx context.Context, account string) (*models.User, error)

	// Balance returns zero for an unknown account.
	Balance(ctx context.Context, account string) (decimal.Decimal, error)
	Deposit(ctx context.Context, account string, amount decimal.Decimal) error

	Schedules(ctx context.Context, owner string) ([]models.PaymentSchedule, error)
	AppendSchedule(ctx context.Context, owner string, s models.PaymentSchedule) error
	// RemoveSchedule reports false when the index is out of range.
	RemoveSchedule(ctx context.Context, owner string, index int) (bool, error)

	LastTransaction(ctx context.Context, owner string) (*models.TransactionRecord, error)

	// RunSettlement loads the full schedule store with balances, applies
	// pass, and persists the result as one atomic unit.
	RunSettlement(ctx context.Context, pass func([]engine.OwnerState) engine.PassResult) (engine.PassResult, error)
}

// Notifier delivers best-effort user notifications after state changes
// have committed.
type Notifier interface {
	Enabled() bool
	SendPaymentNotification(to, username, recipient string, amount decimal.Decimal, executedAt time.Time) error
	SendDepositNotification(to, username string, amount, balance decimal.Decimal) error
}
