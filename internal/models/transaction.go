package models

import "github.com/shopspring/decimal"

// TransactionRecord is the most recent outgoing payment made on behalf of
// an account. One slot per owner; each settlement overwrites it.
type TransactionRecord struct {
	Recipient  string          `json:"recipient"`
	Amount     decimal.Decimal `json:"amount"`
	ExecutedAt int64           `json:"executed_at"`
}
