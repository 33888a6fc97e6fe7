package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlebedev/payflow/internal/config"
	"github.com/mlebedev/payflow/internal/models"
	"github.com/mlebedev/payflow/internal/repository"
)

type recordedNotification struct {
	to        string
	recipient string
	amount    decimal.Decimal
}

type fakeNotifier struct {
	mu       sync.Mutex
	payments []recordedNotification
	deposits []recordedNotification
}

func (f *fakeNotifier) Enabled() bool { return true }

func (f *fakeNotifier) SendPaymentNotification(to, _, recipient string, amount decimal.Decimal, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, recordedNotification{to: to, recipient: recipient, amount: amount})
	return nil
}

func (f *fakeNotifier) SendDepositNotification(to, _ string, amount, _ decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deposits = append(f.deposits, recordedNotification{to: to, amount: amount})
	return nil
}

const testTime int64 = 1_700_000_000

func newTestService(store Storage, notifier Notifier) *Service {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := &config.Config{JWTSecret: "test-secret"}
	svc := NewService(store, logger, cfg, notifier)
	svc.SetClock(func() time.Time { return time.Unix(testTime, 0) })
	return svc
}

func dec(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func TestAddScheduleAppendsInOrder(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(repository.NewMemoryStore(), nil)

	require.NoError(t, svc.AddSchedule(ctx, "alice", "bob", dec(1), 3600, testTime, nil))
	end := testTime + 7200
	require.NoError(t, svc.AddSchedule(ctx, "alice", "carol", dec(2), 60, testTime, &end))

	schedules, err := svc.Schedules(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	assert.Equal(t, "bob", schedules[0].Recipient)
	assert.Equal(t, models.NoEndTime, schedules[0].EndTime)
	assert.Equal(t, "carol", schedules[1].Recipient)
	assert.Equal(t, end, schedules[1].EndTime)
}

func TestCancelScheduleShiftsIndices(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(repository.NewMemoryStore(), nil)

	for _, r := range []string{"r0", "r1", "r2"} {
		require.NoError(t, svc.AddSchedule(ctx, "alice", r, dec(1), 60, testTime, nil))
	}

	require.NoError(t, svc.CancelSchedule(ctx, "alice", 1))

	schedules, err := svc.Schedules(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	assert.Equal(t, "r0", schedules[0].Recipient)
	assert.Equal(t, "r2", schedules[1].Recipient)
}

func TestCancelScheduleOutOfRangeIsNoOp(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(repository.NewMemoryStore(), nil)

	require.NoError(t, svc.AddSchedule(ctx, "alice", "bob", dec(1), 60, testTime, nil))
	require.NoError(t, svc.AddSchedule(ctx, "alice", "carol", dec(1), 60, testTime, nil))

	require.NoError(t, svc.CancelSchedule(ctx, "alice", 5))
	require.NoError(t, svc.CancelSchedule(ctx, "alice", -1))
	require.NoError(t, svc.CancelSchedule(ctx, "nobody", 0))

	schedules, err := svc.Schedules(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, schedules, 2)
}

func TestDepositAccumulates(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(repository.NewMemoryStore(), nil)

	balance, err := svc.Deposit(ctx, "alice", dec(10))
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(10)))

	balance, err = svc.Deposit(ctx, "alice", dec(5))
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(15)))

	unknown, err := svc.Balance(ctx, "nobody")
	require.NoError(t, err)
	assert.True(t, unknown.IsZero())
}

func TestExecutePaymentsSettlesDueSchedule(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(repository.NewMemoryStore(), nil)

	_, err := svc.Deposit(ctx, "alice", dec(10))
	require.NoError(t, err)
	require.NoError(t, svc.AddSchedule(ctx, "alice", "bob", dec(1), 3600, testTime, nil))

	res, err := svc.ExecutePayments(ctx)
	require.NoError(t, err)
	require.Len(t, res.Transfers, 1)

	balance, err := svc.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(9)))

	schedules, err := svc.Schedules(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, testTime+3600, schedules[0].NextExecutionTime)

	rec, err := svc.LastTransaction(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "bob", rec.Recipient)
	assert.True(t, rec.Amount.Equal(dec(1)))
	assert.Equal(t, testTime, rec.ExecutedAt)
}

func TestExecutePaymentsWithoutFundsLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(repository.NewMemoryStore(), nil)

	require.NoError(t, svc.AddSchedule(ctx, "alice", "bob", dec(1), 3600, testTime, nil))

	for i := 0; i < 2; i++ {
		res, err := svc.ExecutePayments(ctx)
		require.NoError(t, err)
		assert.Empty(t, res.Transfers)
	}

	balance, err := svc.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	schedules, err := svc.Schedules(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, testTime, schedules[0].NextExecutionTime, "schedule must stay due")

	rec, err := svc.LastTransaction(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestExecutePaymentsRemovesFinishedSchedule(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(repository.NewMemoryStore(), nil)

	_, err := svc.Deposit(ctx, "alice", dec(10))
	require.NoError(t, err)
	end := testTime + 3600
	require.NoError(t, svc.AddSchedule(ctx, "alice", "bob", dec(1), 3600, testTime, &end))

	res, err := svc.ExecutePayments(ctx)
	require.NoError(t, err)
	require.Len(t, res.Transfers, 1)

	schedules, err := svc.Schedules(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, schedules)
}

func TestTransactionHistoryOverwrite(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newTestService(store, nil)

	_, err := svc.Deposit(ctx, "alice", dec(10))
	require.NoError(t, err)
	require.NoError(t, svc.AddSchedule(ctx, "alice", "bob", dec(1), 3600, testTime, nil))

	_, err = svc.ExecutePayments(ctx)
	require.NoError(t, err)

	svc.SetClock(func() time.Time { return time.Unix(testTime+3600, 0) })
	_, err = svc.ExecutePayments(ctx)
	require.NoError(t, err)

	rec, err := svc.LastTransaction(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, testTime+3600, rec.ExecutedAt, "record must reflect only the most recent payment")
}

func TestScheduleQueryAbsent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(repository.NewMemoryStore(), nil)

	_, ok, err := svc.Schedule(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.AddSchedule(ctx, "alice", "bob", dec(1), 60, testTime, nil))

	_, ok, err = svc.Schedule(ctx, "alice", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	schedule, ok, err := svc.Schedule(ctx, "alice", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bob", schedule.Recipient)
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(repository.NewMemoryStore(), nil)

	user, err := svc.Register(ctx, "alice", "alice@example.com", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, user.AccountID)

	tokenString, err := svc.Login(ctx, "alice@example.com", "hunter2")
	require.NoError(t, err)

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	}, jwt.WithTimeFunc(func() time.Time { return time.Unix(testTime, 0) }))
	require.NoError(t, err)
	assert.Equal(t, user.AccountID, claims.Subject)

	_, err = svc.Login(ctx, "alice@example.com", "wrong")
	assert.Error(t, err)
}

func TestExecutePaymentsNotifiesOwner(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	notifier := &fakeNotifier{}
	svc := newTestService(store, notifier)

	user, err := svc.Register(ctx, "alice", "alice@example.com", "hunter2")
	require.NoError(t, err)

	_, err = svc.Deposit(ctx, user.AccountID, dec(10))
	require.NoError(t, err)
	require.NoError(t, svc.AddSchedule(ctx, user.AccountID, "bob", dec(1), 3600, testTime, nil))

	_, err = svc.ExecutePayments(ctx)
	require.NoError(t, err)

	require.Len(t, notifier.deposits, 1)
	assert.Equal(t, "alice@example.com", notifier.deposits[0].to)
	require.Len(t, notifier.payments, 1)
	assert.Equal(t, "alice@example.com", notifier.payments[0].to)
	assert.Equal(t, "bob", notifier.payments[0].recipient)
	assert.True(t, notifier.payments[0].amount.Equal(dec(1)))
}
