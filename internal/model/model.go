// Package model contains GORM model definitions shared across packages.
// All models are driver-agnostic: they work with both PostgreSQL and SQLite.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

// Account is a login identity held by the local identity provider. When an
// external provider is configured this table stays empty.
type Account struct {
	ID               string `gorm:"type:text;primaryKey"`
	Email            string `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash     string `gorm:"type:text;not null;default:''"`
	EmailConfirmedAt *time.Time
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (a *Account) BeforeCreate(_ *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// RefreshToken is the GORM model for the refresh_tokens table.
type RefreshToken struct {
	ID        string    `gorm:"type:text;primaryKey"`
	AccountID string    `gorm:"type:text;not null;index"`
	TokenHash string    `gorm:"type:text;not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null"`
	RevokedAt *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (rt *RefreshToken) BeforeCreate(_ *gorm.DB) error {
	ensureID(&rt.ID)
	return nil
}

// Blob is an object held by the database-backed blob store.
type Blob struct {
	ID          string    `gorm:"type:text;primaryKey"`
	Bucket      string    `gorm:"type:text;not null;uniqueIndex:idx_blobs_bucket_path"`
	Path        string    `gorm:"type:text;not null;uniqueIndex:idx_blobs_bucket_path"`
	ContentType string    `gorm:"type:text;not null;default:'application/octet-stream'"`
	Size        int64     `gorm:"not null"`
	Data        []byte    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (b *Blob) BeforeCreate(_ *gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// All lists every table model in dependency order, parents first. The
// sqlite driver feeds it to AutoMigrate.
func All() []any {
	return []any{
		&Account{},
		&RefreshToken{},
		&Blob{},
		&Profile{},
		&Contact{},
		&Owner{},
		&Property{},
		&Application{},
		&Protest{},
		&Bill{},
		&Communication{},
		&CommunicationProperty{},
		&EvidenceUpload{},
		&AgentStatusEvent{},
		&CustomerDocument{},
		&ReferralRelationship{},
		&CreditTransaction{},
		&VerificationCode{},
		&PendingSignup{},
	}
}
