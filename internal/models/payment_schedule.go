package models

import (
	"math"

	"github.com/shopspring/decimal"
)

// NoEndTime marks a schedule that recurs until it is canceled.
const NoEndTime int64 = math.MaxInt64

// PaymentSchedule represents a recurring payment directive owned by one
// account. Within the owner's sequence a schedule is identified only by
// its position.
type PaymentSchedule struct {
	Recipient         string          `json:"recipient"`
	Amount            decimal.Decimal `json:"amount"`
	Frequency         int64           `json:"frequency"`
	NextExecutionTime int64           `json:"next_execution_time"`
	EndTime           int64           `json:"end_time"`
}

// OpenEnded reports whether the schedule recurs indefinitely.
func (s PaymentSchedule) OpenEnded() bool {
	return s.EndTime == NoEndTime
}

// Due reports whether the schedule is due at the given Unix time.
func (s PaymentSchedule) Due(now int64) bool {
	return s.NextExecutionTime <= now
}
