// Package signup records a property signup: identity, profile, contact,
// owner, property, application and protest, followed by the first documents
// and the invite email.
package signup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/d9705996/protestpro/internal/apperr"
	"github.com/d9705996/protestpro/internal/documents"
	"github.com/d9705996/protestpro/internal/identity"
	"github.com/d9705996/protestpro/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// minFormattedAddress is the shortest formatted address accepted as a
// geocoded result.
const minFormattedAddress = 10

// Submission is the signup form.
type Submission struct {
	Email                string              `json:"email"`
	FirstName            string              `json:"firstName"`
	LastName             string              `json:"lastName"`
	Phone                string              `json:"phone,omitempty"`
	Address              string              `json:"address"`
	PlaceID              string              `json:"placeId"`
	FormattedAddress     string              `json:"formattedAddress"`
	AddressComponents    datatypes.JSON      `json:"addressComponents,omitempty"`
	Latitude             *float64            `json:"latitude,omitempty"`
	Longitude            *float64            `json:"longitude,omitempty"`
	County               string              `json:"county,omitempty"`
	ParcelNumber         string              `json:"parcelNumber,omitempty"`
	EstimatedSavings     decimal.NullDecimal `json:"estimatedSavings"`
	IncludeAllProperties bool                `json:"includeAllProperties"`
	Role                 string              `json:"role,omitempty"`
	IsTrustEntity        bool                `json:"isTrustEntity"`
	EntityName           string              `json:"entityName,omitempty"`
	EntityType           string              `json:"entityType,omitempty"`
	RelationshipToEntity string              `json:"relationshipToEntity,omitempty"`
	AgreeToUpdates       bool                `json:"agreeToUpdates"`
	Signature            string              `json:"signature,omitempty"`
	ReferralCode         string              `json:"referralCode,omitempty"`
}

// Result identifies what was created.
type Result struct {
	UserID     string `json:"userId"`
	PropertyID string `json:"propertyId"`
}

// Resolver maps an email to an identity, creating it when needed.
// identity.Provisioner satisfies it.
type Resolver interface {
	ResolveOrCreate(ctx context.Context, email string, fields identity.ProfileFields) (string, error)
}

// Generator produces documents. documents.Generator satisfies it.
type Generator interface {
	Generate(ctx context.Context, req documents.Request) (*documents.Result, error)
}

// RetryQueue schedules a later generation attempt.
type RetryQueue interface {
	EnqueueGenerate(ctx context.Context, req documents.Request) error
}

// Service handles submissions.
type Service struct {
	db       *gorm.DB
	resolver Resolver
	docs     Generator
	retry    RetryQueue
	inviter  identity.Inviter
	log      *slog.Logger
	redirect string
	timeout  time.Duration
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCallTimeout bounds each database call.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithClock overrides the clock used for the protest tax year and referral
// dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service. Invite links send the customer to redirectTo.
// retry and inviter may be nil.
func New(db *gorm.DB, resolver Resolver, docs Generator, retry RetryQueue, inviter identity.Inviter, log *slog.Logger, redirectTo string, opts ...Option) *Service {
	s := &Service{
		db:       db,
		resolver: resolver,
		docs:     docs,
		retry:    retry,
		inviter:  inviter,
		log:      log,
		redirect: redirectTo,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Validate checks the required fields and the geocode result.
func Validate(sub *Submission) error {
	if strings.TrimSpace(sub.Email) == "" || strings.TrimSpace(sub.FirstName) == "" ||
		strings.TrimSpace(sub.LastName) == "" || strings.TrimSpace(sub.Address) == "" {
		return apperr.Validation(apperr.CodeMissingField, "email, first name, last name and address are required")
	}
	if sub.PlaceID == "" || len(sub.FormattedAddress) < minFormattedAddress {
		return apperr.Validation(apperr.CodeMissingPlaceID, "Place ID is required to continue. Please contact support.")
	}
	return nil
}

// Submit records the submission. Only the identity and the core records
// are required; protest, documents, referral and invite failures are logged
// and the submission still succeeds.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Result, error) {
	if err := Validate(&sub); err != nil {
		return nil, err
	}
	sub.Email = strings.TrimSpace(sub.Email)

	role := sub.Role
	if role == "" {
		role = "homeowner"
	}
	userID, err := s.resolver.ResolveOrCreate(ctx, sub.Email, identity.ProfileFields{
		FirstName:      sub.FirstName,
		LastName:       sub.LastName,
		Phone:          optional(sub.Phone),
		Role:           role,
		IsTrustEntity:  sub.IsTrustEntity,
		AgreeToUpdates: sub.AgreeToUpdates,
	})
	if err != nil {
		return nil, err
	}
	log := s.log.With("user_id", userID)

	prop, err := s.createRecords(ctx, userID, &sub)
	if err != nil {
		return nil, err
	}
	log = log.With("property_id", prop.ID)

	if err := s.createProtest(ctx, prop, &sub); err != nil {
		log.WarnContext(ctx, "protest not created", "err", err)
	}

	s.generate(ctx, log, documents.Request{UserID: userID, PropertyID: prop.ID, DocumentType: model.DocumentTypeForm50162})
	if sub.Signature != "" {
		s.generate(ctx, log, documents.Request{UserID: userID, PropertyID: prop.ID, DocumentType: model.DocumentTypeServicesAgreement})
	}
	if sub.ReferralCode != "" {
		if err := s.recordReferral(ctx, userID, &sub); err != nil {
			log.WarnContext(ctx, "referral not recorded", "code", sub.ReferralCode, "err", err)
		}
	}
	s.invite(ctx, log, sub.Email)

	log.InfoContext(ctx, "signup submitted")
	return &Result{UserID: userID, PropertyID: prop.ID}, nil
}

// createRecords writes the contact, owner, property and application in one
// transaction.
func (s *Service) createRecords(ctx context.Context, userID string, sub *Submission) (*model.Property, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()

	contact := &model.Contact{
		Email:          sub.Email,
		FirstName:      sub.FirstName,
		LastName:       sub.LastName,
		Phone:          optional(sub.Phone),
		MailingAddress: &sub.Address,
		Source:         optional("property_signup"),
		Status:         "active",
	}
	if sub.IsTrustEntity {
		contact.Company = optional(sub.EntityName)
	}

	owner := &model.Owner{
		Name:               strings.TrimSpace(sub.FirstName + " " + sub.LastName),
		OwnerType:          model.OwnerTypeIndividual,
		EntityRelationship: optional(sub.RelationshipToEntity),
		FormEntityName:     optional(sub.EntityName),
		FormEntityType:     optional(sub.EntityType),
		MailingAddress:     &sub.Address,
		CreatedByUserID:    &userID,
	}
	if sub.IsTrustEntity {
		owner.OwnerType = "entity"
		if sub.EntityType != "" {
			owner.OwnerType = strings.ToLower(sub.EntityType)
		}
		if sub.EntityName != "" {
			owner.Name = sub.EntityName
		}
	}

	formatted := sub.FormattedAddress
	prop := &model.Property{
		UserID:                  userID,
		SitusAddress:            sub.Address,
		FormattedAddress:        &formatted,
		PlaceID:                 &sub.PlaceID,
		GoogleAddressComponents: sub.AddressComponents,
		Latitude:                sub.Latitude,
		Longitude:               sub.Longitude,
		County:                  optional(sub.County),
		ParcelNumber:            optional(sub.ParcelNumber),
		EstimatedSavings:        sub.EstimatedSavings,
		IncludeAllProperties:    &sub.IncludeAllProperties,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(contact).Error; err != nil {
			return fmt.Errorf("create contact: %w", err)
		}
		if err := tx.Create(owner).Error; err != nil {
			return fmt.Errorf("create owner: %w", err)
		}
		prop.ContactID, prop.OwnerID = &contact.ID, &owner.ID
		if err := tx.Create(prop).Error; err != nil {
			return fmt.Errorf("create property: %w", err)
		}
		app := &model.Application{
			UserID:          userID,
			PropertyID:      prop.ID,
			Signature:       optional(sub.Signature),
			Status:          "submitted",
			IsOwnerVerified: true,
		}
		if err := tx.Create(app).Error; err != nil {
			return fmt.Errorf("create application: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.FromDB("record signup", err)
	}
	return prop, nil
}

func (s *Service) createProtest(ctx context.Context, prop *model.Property, sub *Submission) error {
	ctx, cancel := s.call(ctx)
	defer cancel()
	savings := sub.EstimatedSavings
	if !savings.Valid {
		savings = decimal.NewNullDecimal(decimal.Zero)
	}
	ownerName := strings.TrimSpace(sub.FirstName + " " + sub.LastName)
	return s.db.WithContext(ctx).Create(&model.Protest{
		PropertyID:    prop.ID,
		TaxYear:       s.now().Year(),
		AppealStatus:  "pending",
		County:        prop.County,
		SitusAddress:  &prop.SitusAddress,
		OwnerName:     &ownerName,
		SavingsAmount: savings,
	}).Error
}

// generate runs the document pipeline and schedules a retry when it fails.
func (s *Service) generate(ctx context.Context, log *slog.Logger, req documents.Request) {
	res, err := s.docs.Generate(ctx, req)
	if err == nil {
		log.InfoContext(ctx, "document ready", "type", req.DocumentType, "path", res.Filename, "existing", res.IsExisting)
		return
	}
	log.WarnContext(ctx, "document generation failed", "type", req.DocumentType, "err", err)
	if s.retry == nil || !apperr.Retryable(err) {
		return
	}
	if err := s.retry.EnqueueGenerate(ctx, req); err != nil {
		log.WarnContext(ctx, "document retry not scheduled", "type", req.DocumentType, "err", err)
	}
}

func (s *Service) recordReferral(ctx context.Context, userID string, sub *Submission) error {
	ctx, cancel := s.call(ctx)
	defer cancel()
	db := s.db.WithContext(ctx)

	var referrer model.Profile
	err := db.Where("LOWER(referral_code) = LOWER(?)", strings.TrimSpace(sub.ReferralCode)).First(&referrer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("no profile has referral code %q", sub.ReferralCode)
	}
	if err != nil {
		return fmt.Errorf("find referrer: %w", err)
	}
	if referrer.UserID == userID || strings.EqualFold(referrer.Email, sub.Email) {
		return errors.New("self referral ignored")
	}

	now := s.now().UTC()
	edge := &model.ReferralRelationship{
		ReferrerID:       referrer.UserID,
		RefereeID:        userID,
		RefereeEmail:     sub.Email,
		RefereeFirstName: optional(sub.FirstName),
		RefereeLastName:  optional(sub.LastName),
		ReferralCode:     sub.ReferralCode,
		Status:           "completed",
		SignupDate:       now,
		CompletionDate:   &now,
	}
	if err := db.Create(edge).Error; err != nil {
		return fmt.Errorf("create referral: %w", err)
	}
	return nil
}

// invite sends the password setup email, falling back to a recovery email
// when the invite is refused (usually because the account is confirmed).
func (s *Service) invite(ctx context.Context, log *slog.Logger, email string) {
	if s.inviter == nil || s.redirect == "" {
		log.InfoContext(ctx, "no invite redirect configured, password email skipped")
		return
	}
	err := s.inviter.Invite(ctx, email, s.redirect)
	if err == nil {
		return
	}
	log.WarnContext(ctx, "invite failed, trying password recovery", "err", err)
	if err := s.inviter.Recover(ctx, email, s.redirect); err != nil {
		log.WarnContext(ctx, "password email not sent", "err", err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
