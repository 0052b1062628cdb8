package model

import (
	"time"

	"gorm.io/gorm"
)

// Document types produced by the storage pipeline.
const (
	DocumentTypeForm50162         = "form-50-162"
	DocumentTypeServicesAgreement = "services-agreement"
)

// GenerationDateLayout is the calendar-day key stored in generation_date.
const GenerationDateLayout = "2006-01-02"

// CustomerDocument is the metadata row of a generated document. The tuple
// (user_id, property_id, document_type, generation_date) is unique.
type CustomerDocument struct {
	ID             string    `gorm:"type:text;primaryKey"`
	UserID         string    `gorm:"type:text;not null;uniqueIndex:idx_customer_documents_generation"`
	PropertyID     *string   `gorm:"type:text;uniqueIndex:idx_customer_documents_generation"`
	ContactID      *string   `gorm:"type:text;index"`
	OwnerID        *string   `gorm:"type:text;index"`
	DocumentType   string    `gorm:"type:text;not null;uniqueIndex:idx_customer_documents_generation"`
	GenerationDate string    `gorm:"type:text;not null;uniqueIndex:idx_customer_documents_generation"`
	FilePath       string    `gorm:"type:text;not null"`
	Status         string    `gorm:"type:text;not null;default:'generated'"`
	GeneratedAt    time.Time `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (d *CustomerDocument) BeforeCreate(_ *gorm.DB) error {
	ensureID(&d.ID)
	return nil
}

// DocumentReport is a row of the read-only document_reports view, which
// joins customer documents with their property.
type DocumentReport struct {
	ID             string
	UserID         string
	PropertyID     *string
	DocumentType   string
	GenerationDate string
	FilePath       string
	Status         string
	GeneratedAt    time.Time
	County         *string
	SitusAddress   *string
}

// TableName points queries at the view.
func (DocumentReport) TableName() string { return "document_reports" }

// DocumentReportsViewSQL defines the document_reports view for both drivers.
const DocumentReportsViewSQL = `CREATE VIEW document_reports AS
SELECT d.id, d.user_id, d.property_id, d.document_type, d.generation_date,
       d.file_path, d.status, d.generated_at, p.county, p.situs_address
FROM customer_documents d
LEFT JOIN properties p ON p.id = d.property_id`
