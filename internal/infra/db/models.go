package db

import "time"

// Addresses and hashes are stored as 0x-prefixed hex strings, amounts as
// decimal strings, so rows stay readable and survive any integer width.
type VaultModel struct {
	ID           string `gorm:"primaryKey;size:42"`
	Asset        string `gorm:"size:42;not null"`
	Owner        string `gorm:"size:42;not null"`
	Operator     string `gorm:"size:42;not null"`
	Root         string `gorm:"size:66;not null"`
	WindowStart  uint64 `gorm:"not null"`
	WindowEnd    uint64 `gorm:"not null"`
	TotalClaimed string `gorm:"not null"`
	Balance      string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ClaimModel struct {
	ID        int64  `gorm:"primaryKey"`
	VaultID   string `gorm:"size:42;uniqueIndex:idx_vault_account;not null"`
	Account   string `gorm:"size:42;uniqueIndex:idx_vault_account;not null"`
	Amount    string `gorm:"not null"`
	UpdatedAt time.Time
}

type EventModel struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Type        string `gorm:"index;not null"`
	VaultID     string `gorm:"size:42;index;not null"`
	Account     string `gorm:"size:42"`
	Operator    string `gorm:"size:42"`
	Asset       string `gorm:"size:42"`
	Amount      string
	Root        string `gorm:"size:66"`
	WindowStart *uint64
	WindowEnd   *uint64
	At          time.Time `gorm:"index;not null"`
}
