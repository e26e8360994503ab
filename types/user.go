package types

import "time"

// User represents a citizen account.
// Accounts are created at signup and never modified afterwards.
type User struct {
	// ID is the unique identifier of the user (UUID).
	ID string `json:"id" db:"id"`

	// Nome is the user's display name.
	Nome string `json:"nome" db:"nome"`

	// Email holds the national identification number (NIF) used as the
	// account's unique identifier. The column name is kept for the mobile client.
	Email string `json:"email" db:"email"`

	// Telefone is the unique phone number used to log in.
	Telefone string `json:"telefone" db:"telefone"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
