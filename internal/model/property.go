package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Contact is a mailing/communication record created per property submission.
type Contact struct {
	ID             string    `gorm:"type:text;primaryKey"`
	Email          string    `gorm:"type:text;not null;index"`
	FirstName      string    `gorm:"type:text;not null"`
	LastName       string    `gorm:"type:text;not null"`
	Phone          *string   `gorm:"type:text"`
	Company        *string   `gorm:"type:text"`
	MailingAddress *string   `gorm:"type:text"`
	MailingCity    *string   `gorm:"type:text"`
	MailingState   *string   `gorm:"type:text"`
	MailingZip     *string   `gorm:"type:text"`
	Source         *string   `gorm:"type:text"`
	Status         string    `gorm:"type:text;not null;default:'active'"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (c *Contact) BeforeCreate(_ *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// OwnerTypeIndividual is the owner_type of a natural person. Any other
// value is entity ownership.
const OwnerTypeIndividual = "individual"

// Owner is the legal owner of a property.
type Owner struct {
	ID                 string    `gorm:"type:text;primaryKey"`
	Name               string    `gorm:"type:text;not null"`
	OwnerType          string    `gorm:"type:text;not null;default:'individual'"`
	EntityRelationship *string   `gorm:"type:text"`
	FormEntityName     *string   `gorm:"type:text"`
	FormEntityType     *string   `gorm:"type:text"`
	TaxID              *string   `gorm:"type:text"`
	MailingAddress     *string   `gorm:"type:text"`
	CreatedByUserID    *string   `gorm:"type:text;index"`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (o *Owner) BeforeCreate(_ *gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// IsEntity reports whether the owner is a trust, LLC or other entity. An
// unset owner type is individual ownership.
func (o *Owner) IsEntity() bool {
	t := strings.TrimSpace(o.OwnerType)
	return t != "" && !strings.EqualFold(t, OwnerTypeIndividual)
}

// Property is a taxable parcel owned by an identity.
type Property struct {
	ID                      string              `gorm:"type:text;primaryKey"`
	UserID                  string              `gorm:"type:text;not null;index"`
	ContactID               *string             `gorm:"type:text;index"`
	OwnerID                 *string             `gorm:"type:text;index"`
	SitusAddress            string              `gorm:"type:text;not null"`
	FormattedAddress        *string             `gorm:"type:text"`
	PlaceID                 *string             `gorm:"type:text"`
	GoogleAddressComponents datatypes.JSON
	Latitude                *float64
	Longitude               *float64
	County                  *string             `gorm:"type:text;index"`
	ParcelNumber            *string             `gorm:"type:text"`
	AssessedValue           decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	EstimatedSavings        decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	IncludeAllProperties    *bool
	IsActiveAgent           *bool
	AgentStatusSource       string    `gorm:"type:text;not null;default:'none'"`
	AutoAppealEnabled       bool      `gorm:"not null;default:true"`
	CreatedAt               time.Time `gorm:"not null"`
	UpdatedAt               time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (p *Property) BeforeCreate(_ *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// CountyName returns the county, empty when NULL.
func (p *Property) CountyName() string {
	if p.County == nil {
		return ""
	}
	return *p.County
}

// Application is a signup submission for one (identity, property) pair.
type Application struct {
	ID              string    `gorm:"type:text;primaryKey"`
	UserID          string    `gorm:"type:text;not null;index"`
	PropertyID      string    `gorm:"type:text;not null;index"`
	Signature       *string   `gorm:"type:text"`
	Status          string    `gorm:"type:text;not null;default:'pending'"`
	IsOwnerVerified bool      `gorm:"not null;default:false"`
	SubmittedAt     time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (a *Application) BeforeCreate(_ *gorm.DB) error {
	ensureID(&a.ID)
	if a.SubmittedAt.IsZero() {
		a.SubmittedAt = time.Now().UTC()
	}
	return nil
}

// Protest is the tax-appeal case for a property and tax year.
type Protest struct {
	ID                string              `gorm:"type:text;primaryKey"`
	PropertyID        string              `gorm:"type:text;not null;index"`
	TaxYear           int                 `gorm:"not null"`
	AppealStatus      string              `gorm:"type:text;not null;default:'pending'"`
	County            *string             `gorm:"type:text"`
	SitusAddress      *string             `gorm:"type:text"`
	OwnerName         *string             `gorm:"type:text"`
	AssessedValue     decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	MarketValue       decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	SavingsAmount     decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	EvidencePacketURL *string             `gorm:"type:text"`
	HearingDate       *time.Time
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (p *Protest) BeforeCreate(_ *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Bill is an invoice that may reference a protest, a contact or an identity.
type Bill struct {
	ID                 string              `gorm:"type:text;primaryKey"`
	BillNumber         string              `gorm:"type:text;not null"`
	UserID             *string             `gorm:"type:text;index"`
	ProtestID          *string             `gorm:"type:text;index"`
	ContactID          *string             `gorm:"type:text;index"`
	TaxYear            int                 `gorm:"not null"`
	Status             string              `gorm:"type:text;not null;default:'draft'"`
	TotalFeeAmount     decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	TotalProtestAmount decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	DueDate            *time.Time
	PaidDate           *time.Time
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (b *Bill) BeforeCreate(_ *gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// Communication is an inquiry thread with a contact.
type Communication struct {
	ID          string    `gorm:"type:text;primaryKey"`
	ContactID   string    `gorm:"type:text;not null;index"`
	Subject     string    `gorm:"type:text;not null"`
	Message     *string   `gorm:"type:text"`
	InquiryType string    `gorm:"type:text;not null;default:'general'"`
	Priority    string    `gorm:"type:text;not null;default:'normal'"`
	Status      string    `gorm:"type:text;not null;default:'open'"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (c *Communication) BeforeCreate(_ *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// CommunicationProperty links a communication to a property.
type CommunicationProperty struct {
	ID              string    `gorm:"type:text;primaryKey"`
	CommunicationID string    `gorm:"type:text;not null;index"`
	PropertyID      string    `gorm:"type:text;not null;index"`
	CreatedAt       time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (c *CommunicationProperty) BeforeCreate(_ *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// EvidenceUpload is a file submitted as protest evidence.
type EvidenceUpload struct {
	ID               string    `gorm:"type:text;primaryKey"`
	PropertyID       string    `gorm:"type:text;not null;index"`
	ProtestID        *string   `gorm:"type:text;index"`
	ContactID        *string   `gorm:"type:text"`
	FilePath         string    `gorm:"type:text;not null"`
	OriginalFilename string    `gorm:"type:text;not null"`
	ContentType      string    `gorm:"type:text;not null"`
	FileSize         int64     `gorm:"not null"`
	Category         *string   `gorm:"type:text"`
	TaxYear          int       `gorm:"not null"`
	UploadedAt       time.Time `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (e *EvidenceUpload) BeforeCreate(_ *gorm.DB) error {
	ensureID(&e.ID)
	if e.UploadedAt.IsZero() {
		e.UploadedAt = time.Now().UTC()
	}
	return nil
}

// AgentStatusEvent records a change of a property's agent designation.
type AgentStatusEvent struct {
	ID                        string  `gorm:"type:text;primaryKey"`
	PropertyID                string  `gorm:"type:text;not null;index"`
	TaxYear                   int     `gorm:"not null"`
	NewAgentStatusSource      string  `gorm:"type:text;not null"`
	NewIsActiveAgent          *bool
	PreviousAgentStatusSource *string `gorm:"type:text"`
	PreviousIsActiveAgent     *bool
	ChangedByUserID           *string `gorm:"type:text"`
	ExternalReference         *string `gorm:"type:text"`
	ExternalPayload           datatypes.JSON
	CreatedAt                 time.Time `gorm:"not null"`
}

// TableName overrides the default table name.
func (AgentStatusEvent) TableName() string { return "property_agent_status_events" }

// BeforeCreate generates a UUID primary key if not set.
func (a *AgentStatusEvent) BeforeCreate(_ *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
