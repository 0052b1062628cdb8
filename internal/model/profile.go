package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Profile is the business record one-to-one with an identity. Permissions
// is the sole authorization signal for admin-only operations.
type Profile struct {
	ID                    string              `gorm:"type:text;primaryKey"`
	UserID                string              `gorm:"type:text;not null;uniqueIndex"`
	Email                 string              `gorm:"type:text;not null;index"`
	FirstName             string              `gorm:"type:text;not null;default:''"`
	LastName              string              `gorm:"type:text;not null;default:''"`
	Phone                 *string             `gorm:"type:text"`
	Role                  *string             `gorm:"type:text"`
	Permissions           *string             `gorm:"type:text"`
	IsTrustEntity         bool                `gorm:"not null;default:false"`
	AgreeToUpdates        bool                `gorm:"not null;default:false"`
	IsAuthenticated       bool                `gorm:"not null;default:false"`
	LifetimeSavings       decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	ReferralCode          *string             `gorm:"type:text;index"`
	ReferralCreditBalance decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	MailingAddress        *string             `gorm:"type:text"`
	MailingCity           *string             `gorm:"type:text"`
	MailingState          *string             `gorm:"type:text"`
	MailingZip            *string             `gorm:"type:text"`
	CreatedAt             time.Time           `gorm:"not null"`
	UpdatedAt             time.Time           `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (p *Profile) BeforeCreate(_ *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// FullName joins first and last name.
func (p *Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// PermissionsValue returns the permissions column, empty when NULL.
func (p *Profile) PermissionsValue() string {
	if p.Permissions == nil {
		return ""
	}
	return *p.Permissions
}

// ReferralRelationship is a directed referral edge from a referrer identity
// to a referee (by id and email).
type ReferralRelationship struct {
	ID                  string              `gorm:"type:text;primaryKey"`
	ReferrerID          string              `gorm:"type:text;not null;index"`
	RefereeID           string              `gorm:"type:text;not null;index"`
	RefereeEmail        string              `gorm:"type:text;not null;index"`
	RefereeFirstName    *string             `gorm:"type:text"`
	RefereeLastName     *string             `gorm:"type:text"`
	ReferralCode        string              `gorm:"type:text;not null"`
	Status              string              `gorm:"type:text;not null;default:'pending'"`
	SignupDate          time.Time           `gorm:"not null"`
	CompletionDate      *time.Time
	CreditAwardedAmount decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	CreatedAt           time.Time           `gorm:"not null"`
	UpdatedAt           time.Time           `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (r *ReferralRelationship) BeforeCreate(_ *gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// CreditTransaction is one entry in an identity's referral credit ledger.
type CreditTransaction struct {
	ID                     string          `gorm:"type:text;primaryKey"`
	UserID                 string          `gorm:"type:text;not null;index"`
	ReferralRelationshipID *string         `gorm:"type:text;index"`
	InvoiceID              *string         `gorm:"type:text"`
	TransactionType        string          `gorm:"type:text;not null"`
	Amount                 decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	BalanceAfter           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Description            *string         `gorm:"type:text"`
	CreatedAt              time.Time       `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (c *CreditTransaction) BeforeCreate(_ *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// VerificationCode is a one-time code issued to an identity.
type VerificationCode struct {
	ID        string    `gorm:"type:text;primaryKey"`
	UserID    string    `gorm:"type:text;not null;index"`
	Code      string    `gorm:"type:text;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	Used      bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (v *VerificationCode) BeforeCreate(_ *gorm.DB) error {
	ensureID(&v.ID)
	return nil
}

// PendingSignup holds a submission captured before an identity exists.
type PendingSignup struct {
	ID               string         `gorm:"type:text;primaryKey"`
	Email            string         `gorm:"type:text;not null;index"`
	FirstName        *string        `gorm:"type:text"`
	LastName         *string        `gorm:"type:text"`
	Phone            *string        `gorm:"type:text"`
	PlaceID          *string        `gorm:"type:text"`
	FormattedAddress *string        `gorm:"type:text"`
	County           *string        `gorm:"type:text"`
	FormData         datatypes.JSON
	Status           string         `gorm:"type:text;not null;default:'pending'"`
	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (p *PendingSignup) BeforeCreate(_ *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
