package models

// User represents a registered user in the system. AccountID is the
// opaque ledger identity the user acts as.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"` // Not serialized
	AccountID    string `json:"account_id"`
	CreatedAt    string `json:"created_at"`
}
