package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/d9705996/protestpro/internal/model"
	"gorm.io/gorm"
)

// ReconcileReport lists the identities whose provider account and profile
// disagree.
type ReconcileReport struct {
	Accounts               int
	Profiles               int
	AccountsWithoutProfile []string
	ProfilesWithoutAccount []string
}

// Reconciler compares every provider account with the profiles table. It
// only reports; repairs happen at request time or by an operator.
type Reconciler struct {
	db       *gorm.DB
	provider Provider
	log      *slog.Logger
	pageSize int
}

// NewReconciler creates a Reconciler.
func NewReconciler(db *gorm.DB, provider Provider, log *slog.Logger, pageSize int) *Reconciler {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Reconciler{db: db, provider: provider, log: log, pageSize: pageSize}
}

// Run pages through all accounts and compares them with the profiles.
func (r *Reconciler) Run(ctx context.Context) (*ReconcileReport, error) {
	accounts := map[string]bool{}
	for page := 1; ; page++ {
		batch, err := r.provider.ListAccounts(ctx, page, r.pageSize)
		if err != nil {
			return nil, fmt.Errorf("list accounts page %d: %w", page, err)
		}
		for _, a := range batch {
			accounts[a.ID] = true
		}
		if len(batch) < r.pageSize {
			break
		}
	}

	var userIDs []string
	if err := r.db.WithContext(ctx).Model(&model.Profile{}).Order("user_id").Pluck("user_id", &userIDs).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	profiles := make(map[string]bool, len(userIDs))
	rep := &ReconcileReport{Accounts: len(accounts), Profiles: len(userIDs)}
	for _, id := range userIDs {
		profiles[id] = true
		if !accounts[id] {
			rep.ProfilesWithoutAccount = append(rep.ProfilesWithoutAccount, id)
		}
	}
	for id := range accounts {
		if !profiles[id] {
			rep.AccountsWithoutProfile = append(rep.AccountsWithoutProfile, id)
		}
	}

	r.log.InfoContext(ctx, "identity reconciliation",
		"accounts", rep.Accounts,
		"profiles", rep.Profiles,
		"accounts_without_profile", len(rep.AccountsWithoutProfile),
		"profiles_without_account", len(rep.ProfilesWithoutAccount))
	for _, id := range rep.AccountsWithoutProfile {
		r.log.WarnContext(ctx, "account has no profile", "user_id", id)
	}
	for _, id := range rep.ProfilesWithoutAccount {
		r.log.WarnContext(ctx, "profile has no account", "user_id", id)
	}
	return rep, nil
}
