package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/d9705996/protestpro/internal/apperr"
	"github.com/d9705996/protestpro/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileFields are the profile columns written on every provisioning call.
type ProfileFields struct {
	FirstName      string
	LastName       string
	Phone          *string
	Role           string
	IsTrustEntity  bool
	AgreeToUpdates bool
}

// Provisioner resolves an email to exactly one identity, creating the
// account when needed, and keeps the profile row in step.
type Provisioner struct {
	db       *gorm.DB
	provider Provider
	log      *slog.Logger
	pageSize int
	timeout  time.Duration
}

// NewProvisioner creates a Provisioner. pageSize bounds the account listing
// used to repair a provider/profile desync.
func NewProvisioner(db *gorm.DB, provider Provider, log *slog.Logger, pageSize int, timeout time.Duration) *Provisioner {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Provisioner{db: db, provider: provider, log: log, pageSize: pageSize, timeout: timeout}
}

func (p *Provisioner) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// ResolveOrCreate returns the identity id for email and upserts its profile.
//
// A profile with the email is authoritative. Otherwise an unconfirmed
// account is created; if that fails, typically because the provider already
// has the account while the profile row is missing, one page of accounts is
// searched for the email. No match there is fatal.
func (p *Provisioner) ResolveOrCreate(ctx context.Context, email string, fields ProfileFields) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", apperr.Validation(apperr.CodeMissingField, "email is required")
	}

	userID, err := p.profileUserID(ctx, email)
	if err != nil {
		return "", err
	}
	if userID == "" {
		userID, err = p.createOrFind(ctx, email, fields)
		if err != nil {
			return "", err
		}
	}

	if err := p.upsertProfile(ctx, userID, email, fields); err != nil {
		return "", err
	}
	return userID, nil
}

func (p *Provisioner) profileUserID(ctx context.Context, email string) (string, error) {
	ctx, cancel := p.call(ctx)
	defer cancel()
	var ids []string
	err := p.db.WithContext(ctx).Model(&model.Profile{}).
		Where("LOWER(email) = ?", strings.ToLower(email)).
		Limit(1).
		Pluck("user_id", &ids).Error
	if err != nil {
		return "", apperr.FromDB("look up profile by email", err)
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

func (p *Provisioner) createOrFind(ctx context.Context, email string, fields ProfileFields) (string, error) {
	cctx, cancel := p.call(ctx)
	acct, createErr := p.provider.CreateAccount(cctx, email, map[string]any{
		"first_name": fields.FirstName,
		"last_name":  fields.LastName,
	})
	cancel()
	if createErr == nil {
		return acct.ID, nil
	}
	if !errors.Is(createErr, ErrAccountExists) {
		p.log.WarnContext(ctx, "create account failed; searching existing accounts", "err", createErr)
	}

	lctx, cancel := p.call(ctx)
	defer cancel()
	accounts, err := p.provider.ListAccounts(lctx, 1, p.pageSize)
	if err != nil {
		return "", apperr.FromContext("resolve account", errors.Join(createErr, err))
	}
	for _, a := range accounts {
		if strings.EqualFold(a.Email, email) {
			p.log.InfoContext(ctx, "repaired identity without profile", "user_id", a.ID)
			return a.ID, nil
		}
	}
	return "", apperr.Internal("identity_unresolved", "account exists but could not be retrieved", createErr)
}

func (p *Provisioner) upsertProfile(ctx context.Context, userID, email string, fields ProfileFields) error {
	ctx, cancel := p.call(ctx)
	defer cancel()
	role := fields.Role
	if role == "" {
		role = "homeowner"
	}
	prof := &model.Profile{
		UserID:          userID,
		Email:           email,
		FirstName:       fields.FirstName,
		LastName:        fields.LastName,
		Phone:           fields.Phone,
		Role:            &role,
		IsTrustEntity:   fields.IsTrustEntity,
		AgreeToUpdates:  fields.AgreeToUpdates,
		IsAuthenticated: true,
	}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email", "first_name", "last_name", "phone", "role",
			"is_trust_entity", "agree_to_updates", "is_authenticated", "updated_at",
		}),
	}).Create(prof).Error
	if err != nil {
		return apperr.FromDB("upsert profile", err)
	}
	return nil
}
