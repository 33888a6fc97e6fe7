package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mlebedev/payflow/internal/engine"
	"github.com/mlebedev/payflow/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate applies the embedded schema. All statements are idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO pay.users (username, email, password_hash, account_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	var createdAt time.Time
	err := r.db.QueryRowContext(ctx, query, user.Username, user.Email, user.PasswordHash, user.AccountID).
		Scan(&user.ID, &createdAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.CreatedAt = createdAt.Format(time.RFC3339)
	return nil
}

// FindUserByEmail retrieves a user by email
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	var createdAt time.Time
	query := `
		SELECT id, username, email, password_hash, account_id, created_at
		FROM pay.users
		WHERE email = $1`
	err := r.db.QueryRowContext(ctx, query, email).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.AccountID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	user.CreatedAt = createdAt.Format(time.RFC3339)
	return user, nil
}

// FindUserByAccount retrieves the user owning the given ledger account.
func (r *Repository) FindUserByAccount(ctx context.Context, account string) (*models.User, error) {
	user := &models.User{}
	var createdAt time.Time
	query := `
		SELECT id, username, email, password_hash, account_id, created_at
		FROM pay.users
		WHERE account_id = $1`
	err := r.db.QueryRowContext(ctx, query, account).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.AccountID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	user.CreatedAt = createdAt.Format(time.RFC3339)
	return user, nil
}

// Balance returns the account balance, zero when the account is unknown.
func (r *Repository) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	var amount decimal.Decimal
	query := `SELECT amount FROM pay.balances WHERE account = $1`
	err := r.db.QueryRowContext(ctx, query, account).Scan(&amount)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load balance: %w", err)
	}
	return amount, nil
}

// Deposit credits the amount to the account, creating the balance row on
// first use.
func (r *Repository) Deposit(ctx context.Context, account string, amount decimal.Decimal) error {
	query := `
		INSERT INTO pay.balances (account, amount)
		VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET amount = pay.balances.amount + EXCLUDED.amount`
	if _, err := r.db.ExecContext(ctx, query, account, amount); err != nil {
		return fmt.Errorf("failed to deposit: %w", err)
	}
	return nil
}

// Schedules returns the owner's full schedule sequence in position order,
// empty when the owner has none.
func (r *Repository) Schedules(ctx context.Context, owner string) ([]models.PaymentSchedule, error) {
	query := `
		SELECT recipient, amount, frequency, next_execution_time, end_time
		FROM pay.schedules
		WHERE owner = $1
		ORDER BY pos`
	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedules: %w", err)
	}
	defer rows.Close()

	var schedules []models.PaymentSchedule
	for rows.Next() {
		var s models.PaymentSchedule
		if err := rows.Scan(&s.Recipient, &s.Amount, &s.Frequency, &s.NextExecutionTime, &s.EndTime); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load schedules: %w", err)
	}
	return schedules, nil
}

// AppendSchedule appends the schedule to the end of the owner's sequence.
func (r *Repository) AppendSchedule(ctx context.Context, owner string, s models.PaymentSchedule) error {
	query := `
		INSERT INTO pay.schedules (owner, pos, recipient, amount, frequency, next_execution_time, end_time)
		VALUES ($1, (SELECT COALESCE(MAX(pos) + 1, 0) FROM pay.schedules WHERE owner = $1), $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query,
		owner, s.Recipient, s.Amount, s.Frequency, s.NextExecutionTime, s.EndTime)
	if err != nil {
		return fmt.Errorf("failed to append schedule: %w", err)
	}
	return nil
}

// RemoveSchedule removes the schedule at the given position; later entries
// shift down by one. Returns false when the index is out of range.
func (r *Repository) RemoveSchedule(ctx context.Context, owner string, index int) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	schedules, err := loadSchedulesTx(ctx, tx, owner)
	if err != nil {
		return false, err
	}
	if index < 0 || index >= len(schedules) {
		return false, nil
	}

	schedules = append(schedules[:index], schedules[index+1:]...)
	if err := writeSchedulesTx(ctx, tx, owner, schedules); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// LastTransaction returns the owner's most recent payment record, nil when
// the owner never paid.
func (r *Repository) LastTransaction(ctx context.Context, owner string) (*models.TransactionRecord, error) {
	rec := &models.TransactionRecord{}
	query := `SELECT recipient, amount, executed_at FROM pay.transactions WHERE owner = $1`
	err := r.db.QueryRowContext(ctx, query, owner).Scan(&rec.Recipient, &rec.Amount, &rec.ExecutedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction record: %w", err)
	}
	return rec, nil
}

// RunSettlement runs one settlement pass inside a single SERIALIZABLE
// transaction: it loads every owner present in the schedule store together
// with its balance, invokes pass, and writes back balances, retained
// schedule sequences, and transaction records. The invocation commits
// entirely or not at all.
func (r *Repository) RunSettlement(ctx context.Context, pass func([]engine.OwnerState) engine.PassResult) (engine.PassResult, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return engine.PassResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	owners, err := loadOwnersTx(ctx, tx)
	if err != nil {
		return engine.PassResult{}, err
	}

	res := pass(owners)

	for _, st := range res.Owners {
		balanceQuery := `
			INSERT INTO pay.balances (account, amount)
			VALUES ($1, $2)
			ON CONFLICT (account) DO UPDATE SET amount = EXCLUDED.amount`
		if _, err := tx.ExecContext(ctx, balanceQuery, st.Owner, st.Balance); err != nil {
			return engine.PassResult{}, fmt.Errorf("failed to write balance: %w", err)
		}
		if err := writeSchedulesTx(ctx, tx, st.Owner, st.Schedules); err != nil {
			return engine.PassResult{}, err
		}
	}

	recordQuery := `
		INSERT INTO pay.transactions (owner, recipient, amount, executed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner) DO UPDATE
		SET recipient = EXCLUDED.recipient, amount = EXCLUDED.amount, executed_at = EXCLUDED.executed_at`
	for owner, rec := range res.Records {
		if _, err := tx.ExecContext(ctx, recordQuery, owner, rec.Recipient, rec.Amount, rec.ExecutedAt); err != nil {
			return engine.PassResult{}, fmt.Errorf("failed to write transaction record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return engine.PassResult{}, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return res, nil
}

func loadOwnersTx(ctx context.Context, tx *sql.Tx) ([]engine.OwnerState, error) {
	query := `
		SELECT owner, recipient, amount, frequency, next_execution_time, end_time
		FROM pay.schedules
		ORDER BY owner, pos`
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule store: %w", err)
	}
	defer rows.Close()

	var owners []engine.OwnerState
	for rows.Next() {
		var owner string
		var s models.PaymentSchedule
		if err := rows.Scan(&owner, &s.Recipient, &s.Amount, &s.Frequency, &s.NextExecutionTime, &s.EndTime); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		if len(owners) == 0 || owners[len(owners)-1].Owner != owner {
			owners = append(owners, engine.OwnerState{Owner: owner})
		}
		last := &owners[len(owners)-1]
		last.Schedules = append(last.Schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load schedule store: %w", err)
	}

	for i := range owners {
		var amount decimal.Decimal
		err := tx.QueryRowContext(ctx, `SELECT amount FROM pay.balances WHERE account = $1`, owners[i].Owner).
			Scan(&amount)
		if err == sql.ErrNoRows {
			amount = decimal.Zero
		} else if err != nil {
			return nil, fmt.Errorf("failed to load balance: %w", err)
		}
		owners[i].Balance = amount
	}
	return owners, nil
}

func loadSchedulesTx(ctx context.Context, tx *sql.Tx, owner string) ([]models.PaymentSchedule, error) {
	query := `
		SELECT recipient, amount, frequency, next_execution_time, end_time
		FROM pay.schedules
		WHERE owner = $1
		ORDER BY pos`
	rows, err := tx.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedules: %w", err)
	}
	defer rows.Close()

	var schedules []models.PaymentSchedule
	for rows.Next() {
		var s models.PaymentSchedule
		if err := rows.Scan(&s.Recipient, &s.Amount, &s.Frequency, &s.NextExecutionTime, &s.EndTime); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load schedules: %w", err)
	}
	return schedules, nil
}

// writeSchedulesTx replaces the owner's stored sequence with the given one,
// renumbering positions from zero.
func writeSchedulesTx(ctx context.Context, tx *sql.Tx, owner string, schedules []models.PaymentSchedule) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM pay.schedules WHERE owner = $1`, owner); err != nil {
		return fmt.Errorf("failed to clear schedules: %w", err)
	}
	query := `
		INSERT INTO pay.schedules (owner, pos, recipient, amount, frequency, next_execution_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for i, s := range schedules {
		if _, err := tx.ExecContext(ctx, query,
			owner, i, s.Recipient, s.Amount, s.Frequency, s.NextExecutionTime, s.EndTime); err != nil {
			return fmt.Errorf("failed to write schedule: %w", err)
		}
	}
	return nil
}
