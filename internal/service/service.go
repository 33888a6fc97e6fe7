package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/mlebedev/payflow/internal/config"
	"github.com/mlebedev/payflow/internal/engine"
	"github.com/mlebedev/payflow/internal/models"
	"github.com/mlebedev/payflow/internal/utils"
)

// Service handles business logic
type Service struct {
	store    Storage
	log      *logrus.Logger
	config   *config.Config
	notifier Notifier // nil disables notifications
	now      func() time.Time
}

// NewService initializes a new service
func NewService(store Storage, log *logrus.Logger, cfg *config.Config, notifier Notifier) *Service {
	return &Service{
		store:    store,
		log:      log,
		config:   cfg,
		notifier: notifier,
		now:      time.Now,
	}
}

// SetClock overrides the service clock.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Register creates a new user with a hashed password and a fresh ledger
// account identity.
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	accountID, err := utils.GenerateAccountID()
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		AccountID:    accountID,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Infof("User registered: %s (account %s)", user.Email, user.AccountID)
	return user, nil
}

// Login authenticates a user and returns a JWT token whose subject is the
// user's account identifier.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user.AccountID,
		ExpiresAt: jwt.NewNumericDate(s.now().Add(24 * time.Hour)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("User logged in: %s", user.Email)
	return tokenString, nil
}

// AddSchedule appends a new payment schedule to the owner's sequence.
// A nil endTime means the schedule recurs until canceled. Amount,
// frequency, and time ordering are accepted as given.
func (s *Service) AddSchedule(ctx context.Context, owner, recipient string, amount decimal.Decimal, frequency, startTime int64, endTime *int64) error {
	end := models.NoEndTime
	if endTime != nil {
		end = *endTime
	}

	schedule := models.PaymentSchedule{
		Recipient:         recipient,
		Amount:            amount,
		Frequency:         frequency,
		NextExecutionTime: startTime,
		EndTime:           end,
	}

	if err := s.store.AppendSchedule(ctx, owner, schedule); err != nil {
		return err
	}

	s.log.Infof("Schedule added for %s: %s to %s every %ds", owner, amount.String(), recipient, frequency)
	return nil
}

// CancelSchedule removes the schedule at the given position in the owner's
// sequence; later entries shift down by one. An out-of-range index is a
// silent no-op.
func (s *Service) CancelSchedule(ctx context.Context, owner string, index int) error {
	removed, err := s.store.RemoveSchedule(ctx, owner, index)
	if err != nil {
		return err
	}
	if !removed {
		s.log.Debugf("Cancel for %s ignored: index %d out of range", owner, index)
		return nil
	}
	s.log.Infof("Schedule %d canceled for %s", index, owner)
	return nil
}

// Deposit credits the amount to the account and returns the new balance.
func (s *Service) Deposit(ctx context.Context, account string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := s.store.Deposit(ctx, account, amount); err != nil {
		return decimal.Zero, err
	}

	balance, err := s.store.Balance(ctx, account)
	if err != nil {
		return decimal.Zero, err
	}

	s.log.Infof("Deposit of %s credited to %s", amount.String(), account)

	if s.notifier != nil && s.notifier.Enabled() {
		if user, err := s.store.FindUserByAccount(ctx, account); err == nil {
			if err := s.notifier.SendDepositNotification(user.Email, user.Username, amount, balance); err != nil {
				s.log.Warnf("Deposit notification for %s failed: %v", account, err)
			}
		}
	}

	return balance, nil
}

// ExecutePayments runs one settlement pass over the whole schedule store.
// The pass is atomic: it commits entirely or leaves state unchanged.
// Notifications go out only after the commit.
func (s *Service) ExecutePayments(ctx context.Context) (engine.PassResult, error) {
	now := s.now().Unix()

	res, err := s.store.RunSettlement(ctx, func(owners []engine.OwnerState) engine.PassResult {
		return engine.RunPass(owners, now)
	})
	if err != nil {
		return engine.PassResult{}, fmt.Errorf("settlement pass failed: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"owners":    len(res.Owners),
		"transfers": len(res.Transfers),
		"time":      now,
	}).Info("Settlement pass completed")

	s.notifyTransfers(ctx, res.Transfers)
	return res, nil
}

func (s *Service) notifyTransfers(ctx context.Context, transfers []engine.Transfer) {
	if s.notifier == nil || !s.notifier.Enabled() || len(transfers) == 0 {
		return
	}
	for _, tr := range transfers {
		user, err := s.store.FindUserByAccount(ctx, tr.Owner)
		if err != nil {
			continue
		}
		executedAt := time.Unix(tr.Timestamp, 0)
		if err := s.notifier.SendPaymentNotification(user.Email, user.Username, tr.Recipient, tr.Amount, executedAt); err != nil {
			s.log.Warnf("Payment notification for %s failed: %v", tr.Owner, err)
		}
	}
}

// Balance returns the account balance, zero for an unknown account.
func (s *Service) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	return s.store.Balance(ctx, account)
}

// Schedules returns the owner's full schedule sequence, empty when none.
func (s *Service) Schedules(ctx context.Context, owner string) ([]models.PaymentSchedule, error) {
	return s.store.Schedules(ctx, owner)
}

// Schedule returns the schedule at the given position. The second return
// value is false when the owner is unknown or the index is out of range.
func (s *Service) Schedule(ctx context.Context, owner string, index int) (models.PaymentSchedule, bool, error) {
	schedules, err := s.store.Schedules(ctx, owner)
	if err != nil {
		return models.PaymentSchedule{}, false, err
	}
	if index < 0 || index >= len(schedules) {
		return models.PaymentSchedule{}, false, nil
	}
	return schedules[index], true, nil
}

// LastTransaction returns the owner's most recent payment record, nil when
// the owner never paid.
func (s *Service) LastTransaction(ctx context.Context, owner string) (*models.TransactionRecord, error) {
	return s.store.LastTransaction(ctx, owner)
}
