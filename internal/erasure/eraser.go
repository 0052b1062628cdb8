// Package erasure deletes everything an identity owns, children before
// parents, and the identity provider account last. Identities in one batch
// are erased independently: a failure for one never rolls back or stops
// another.
package erasure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/d9705996/protestpro/internal/apperr"
	"github.com/d9705996/protestpro/internal/audit"
	"github.com/d9705996/protestpro/internal/authz"
	"github.com/d9705996/protestpro/internal/identity"
	"github.com/d9705996/protestpro/internal/model"
	"github.com/d9705996/protestpro/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"gorm.io/gorm"
)

const instrumentation = "github.com/d9705996/protestpro/internal/erasure"

// Counts is the number of rows (or blobs) removed per category. Every
// category is present, zero when nothing matched or the step never ran.
type Counts struct {
	StorageFiles          int64 `json:"storageFiles"`
	Bills                 int64 `json:"bills"`
	CommunicationLinks    int64 `json:"communicationLinks"`
	Communications        int64 `json:"communications"`
	Evidence              int64 `json:"evidence"`
	AgentStatusEvents     int64 `json:"agentStatusEvents"`
	Protests              int64 `json:"protests"`
	Applications          int64 `json:"applications"`
	Documents             int64 `json:"documents"`
	Properties            int64 `json:"properties"`
	Contacts              int64 `json:"contacts"`
	Owners                int64 `json:"owners"`
	CreditTransactions    int64 `json:"creditTransactions"`
	VerificationCodes     int64 `json:"verificationCodes"`
	ReferralRelationships int64 `json:"referralRelationships"`
	PendingSignups        int64 `json:"pendingSignups"`
	Profiles              int64 `json:"profiles"`
}

// Result is the outcome for one identity.
type Result struct {
	UserID        string `json:"userId"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	DeletedCounts Counts `json:"deletedCounts"`
}

// Summary totals a batch.
type Summary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Report is the outcome of a batch, one result per requested identity in
// request order.
type Report struct {
	Results []Result `json:"results"`
	Summary Summary  `json:"summary"`
}

// AccountDeleter removes login-capable accounts. identity.Provider
// satisfies it.
type AccountDeleter interface {
	DeleteAccount(ctx context.Context, id string) error
}

// Authorizer confirms administrator standing. authz.Checker satisfies it.
type Authorizer interface {
	Require(ctx context.Context, userID, obj, act string) error
}

// Eraser runs cascading deletes.
type Eraser struct {
	db       *gorm.DB
	store    storage.Store
	accounts AccountDeleter
	authz    Authorizer
	audit    audit.Publisher
	log      *slog.Logger
	timeout  time.Duration

	erased metric.Int64Counter
}

// New creates an Eraser. timeout bounds each database, blob store and
// identity provider call; zero means unbounded.
func New(db *gorm.DB, store storage.Store, accounts AccountDeleter, az Authorizer, pub audit.Publisher, log *slog.Logger, timeout time.Duration) *Eraser {
	e := &Eraser{
		db:       db,
		store:    store,
		accounts: accounts,
		authz:    az,
		audit:    pub,
		log:      log,
		timeout:  timeout,
	}
	c, err := otel.Meter(instrumentation).Int64Counter("protestpro.erasure.identities",
		metric.WithDescription("Identities processed by the account eraser, by outcome"))
	if err != nil {
		e.erased = noop.Int64Counter{}
	} else {
		e.erased = c
	}
	return e
}

func (e *Eraser) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// DeleteUsers erases each identity in userIDs on behalf of actorID. The
// actor's administrator standing is checked before anything is touched.
// Per-identity failures are reported in the Report, not as an error.
func (e *Eraser) DeleteUsers(ctx context.Context, actorID string, userIDs []string) (*Report, error) {
	ctx, span := otel.Tracer(instrumentation).Start(ctx, "erasure.DeleteUsers")
	defer span.End()

	if err := e.authz.Require(ctx, actorID, authz.ObjUsers, authz.ActDelete); err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, apperr.Validation(apperr.CodeMissingField, "userIds must be a non-empty array")
	}
	span.SetAttributes(attribute.String("actor.id", actorID), attribute.Int("users", len(userIDs)))

	rep := &Report{Results: make([]Result, 0, len(userIDs))}
	for _, id := range userIDs {
		res := e.deleteOne(ctx, id)
		rep.Results = append(rep.Results, res)
		rep.Summary.Total++
		outcome := "deleted"
		if res.Success {
			rep.Summary.Successful++
		} else {
			rep.Summary.Failed++
			outcome = "failed"
		}
		e.erased.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

		err := e.audit.Publish(ctx, audit.Event{
			Type:     audit.EventUserErasure,
			ActorID:  actorID,
			TargetID: id,
			Success:  res.Success,
			Error:    res.Error,
			Details:  res.DeletedCounts,
		})
		if err != nil {
			e.log.WarnContext(ctx, "audit event not recorded", "user_id", id, "err", err)
		}
	}
	if rep.Summary.Failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d erasures failed", rep.Summary.Failed, rep.Summary.Total))
	}
	return rep, nil
}

// related holds the ids gathered before anything is deleted.
type related struct {
	email          string
	properties     []string
	contacts       []string
	owners         []string
	protests       []model.Protest
	communications []string
}

func (r *related) protestIDs() []string {
	ids := make([]string, len(r.protests))
	for i, p := range r.protests {
		ids[i] = p.ID
	}
	return ids
}

func (e *Eraser) deleteOne(ctx context.Context, userID string) Result {
	res := Result{UserID: userID}
	log := e.log.With("user_id", userID)

	rel, err := e.gather(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "erasure aborted", "err", err)
		res.Error = err.Error()
		return res
	}

	res.DeletedCounts.StorageFiles = e.removeBlobs(ctx, log, userID, rel)

	if err := e.deleteRows(ctx, userID, rel, &res.DeletedCounts); err != nil {
		// Earlier steps stay deleted; the login account is kept.
		log.ErrorContext(ctx, "erasure stopped", "err", err)
		res.Error = err.Error()
		return res
	}

	cctx, cancel := e.call(ctx)
	err = e.accounts.DeleteAccount(cctx, userID)
	cancel()
	switch {
	case errors.Is(err, identity.ErrAccountNotFound):
		log.WarnContext(ctx, "identity provider account already gone")
	case err != nil:
		log.ErrorContext(ctx, "identity provider account not deleted", "err", err)
		res.Error = fmt.Sprintf("delete identity account: %v", err)
		return res
	}

	res.Success = true
	log.InfoContext(ctx, "identity erased", "counts", res.DeletedCounts)
	return res
}

func (e *Eraser) gather(ctx context.Context, userID string) (*related, error) {
	ctx, cancel := e.call(ctx)
	defer cancel()
	db := e.db.WithContext(ctx)

	var profile model.Profile
	if err := db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("profile not found for user %s", userID)
		}
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	rel := &related{email: profile.Email}

	var props []model.Property
	if err := db.Select("id", "contact_id", "owner_id").Where("user_id = ?", userID).Find(&props).Error; err != nil {
		return nil, fmt.Errorf("fetch properties: %w", err)
	}
	seenContact, seenOwner := map[string]bool{}, map[string]bool{}
	for _, p := range props {
		rel.properties = append(rel.properties, p.ID)
		if p.ContactID != nil && !seenContact[*p.ContactID] {
			seenContact[*p.ContactID] = true
			rel.contacts = append(rel.contacts, *p.ContactID)
		}
		if p.OwnerID != nil && !seenOwner[*p.OwnerID] {
			seenOwner[*p.OwnerID] = true
			rel.owners = append(rel.owners, *p.OwnerID)
		}
	}

	if len(rel.properties) > 0 {
		if err := db.Select("id", "evidence_packet_url").
			Where("property_id IN ?", rel.properties).Find(&rel.protests).Error; err != nil {
			return nil, fmt.Errorf("fetch protests: %w", err)
		}
	}
	if len(rel.contacts) > 0 {
		if err := db.Model(&model.Communication{}).
			Where("contact_id IN ?", rel.contacts).Pluck("id", &rel.communications).Error; err != nil {
			return nil, fmt.Errorf("fetch communications: %w", err)
		}
	}
	return rel, nil
}

// removeBlobs deletes customer documents, evidence files and evidence
// packets. Failures are logged and never stop the erasure.
func (e *Eraser) removeBlobs(ctx context.Context, log *slog.Logger, userID string, rel *related) int64 {
	var removed int64
	remove := func(bucket string, paths []string) {
		if len(paths) == 0 {
			return
		}
		cctx, cancel := e.call(ctx)
		defer cancel()
		n, err := e.store.Remove(cctx, bucket, paths)
		removed += int64(n)
		if err != nil {
			log.WarnContext(ctx, "blob delete failed", "bucket", bucket, "paths", len(paths), "removed", n, "err", err)
		}
	}
	pluck := func(m any, query string, arg any) []string {
		cctx, cancel := e.call(ctx)
		defer cancel()
		var paths []string
		if err := e.db.WithContext(cctx).Model(m).Where(query, arg).Pluck("file_path", &paths).Error; err != nil {
			log.WarnContext(ctx, "blob paths not listed", "err", err)
		}
		return paths
	}

	remove(storage.BucketDocuments, pluck(&model.CustomerDocument{}, "user_id = ?", userID))
	if len(rel.properties) > 0 {
		remove(storage.BucketEvidence, pluck(&model.EvidenceUpload{}, "property_id IN ?", rel.properties))
	}

	packets := map[string][]string{}
	for _, p := range rel.protests {
		if p.EvidencePacketURL == nil || *p.EvidencePacketURL == "" {
			continue
		}
		bucket, path, ok := e.store.ParseURL(*p.EvidencePacketURL)
		if !ok {
			log.WarnContext(ctx, "evidence packet url not in blob store", "protest_id", p.ID)
			continue
		}
		packets[bucket] = append(packets[bucket], path)
	}
	for bucket, paths := range packets {
		remove(bucket, paths)
	}
	return removed
}

func (e *Eraser) deleteRows(ctx context.Context, userID string, rel *related, c *Counts) error {
	del := func(name string, dst *int64, m any, query string, args ...any) error {
		cctx, cancel := e.call(ctx)
		defer cancel()
		res := e.db.WithContext(cctx).Where(query, args...).Delete(m)
		if res.Error != nil {
			return fmt.Errorf("delete %s: %w", name, res.Error)
		}
		*dst += res.RowsAffected
		return nil
	}
	delIn := func(name string, dst *int64, m any, column string, ids []string) error {
		if len(ids) == 0 {
			return nil
		}
		return del(name, dst, m, column+" IN ?", ids)
	}

	protests := rel.protestIDs()
	steps := []func() error{
		func() error { return delIn("bills by protest", &c.Bills, &model.Bill{}, "protest_id", protests) },
		func() error { return delIn("bills by contact", &c.Bills, &model.Bill{}, "contact_id", rel.contacts) },
		func() error { return del("bills by user", &c.Bills, &model.Bill{}, "user_id = ?", userID) },
		func() error {
			return delIn("communication links by property", &c.CommunicationLinks, &model.CommunicationProperty{}, "property_id", rel.properties)
		},
		func() error {
			return delIn("communication links by communication", &c.CommunicationLinks, &model.CommunicationProperty{}, "communication_id", rel.communications)
		},
		func() error {
			return delIn("communications", &c.Communications, &model.Communication{}, "contact_id", rel.contacts)
		},
		func() error { return delIn("evidence uploads", &c.Evidence, &model.EvidenceUpload{}, "property_id", rel.properties) },
		func() error {
			return delIn("agent status events", &c.AgentStatusEvents, &model.AgentStatusEvent{}, "property_id", rel.properties)
		},
		func() error { return delIn("protests", &c.Protests, &model.Protest{}, "id", protests) },
		func() error { return del("applications", &c.Applications, &model.Application{}, "user_id = ?", userID) },
		func() error { return del("documents", &c.Documents, &model.CustomerDocument{}, "user_id = ?", userID) },
		func() error { return delIn("properties", &c.Properties, &model.Property{}, "id", rel.properties) },
		func() error { return delIn("contacts", &c.Contacts, &model.Contact{}, "id", rel.contacts) },
		func() error { return delIn("owners", &c.Owners, &model.Owner{}, "id", rel.owners) },
		func() error {
			return del("credit transactions", &c.CreditTransactions, &model.CreditTransaction{}, "user_id = ?", userID)
		},
		func() error {
			return del("verification codes", &c.VerificationCodes, &model.VerificationCode{}, "user_id = ?", userID)
		},
		func() error { return e.detachReferralCredits(ctx, userID, rel.email) },
		func() error {
			return del("referrals as referrer", &c.ReferralRelationships, &model.ReferralRelationship{}, "referrer_id = ?", userID)
		},
		func() error {
			return del("referrals as referee", &c.ReferralRelationships, &model.ReferralRelationship{}, "referee_id = ?", userID)
		},
		func() error {
			return del("referrals by email", &c.ReferralRelationships, &model.ReferralRelationship{}, "LOWER(referee_email) = LOWER(?)", rel.email)
		},
		func() error {
			return del("pending signups", &c.PendingSignups, &model.PendingSignup{}, "LOWER(email) = LOWER(?)", rel.email)
		},
		func() error { return del("profile", &c.Profiles, &model.Profile{}, "user_id = ?", userID) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// detachReferralCredits clears the referral reference on other identities'
// ledger entries that point at the referral edges about to be deleted. The
// entries themselves belong to those identities and are kept.
func (e *Eraser) detachReferralCredits(ctx context.Context, userID, email string) error {
	ctx, cancel := e.call(ctx)
	defer cancel()
	edges := e.db.Model(&model.ReferralRelationship{}).Select("id").
		Where("referrer_id = ? OR referee_id = ? OR LOWER(referee_email) = LOWER(?)", userID, userID, email)
	err := e.db.WithContext(ctx).Model(&model.CreditTransaction{}).
		Where("referral_relationship_id IN (?)", edges).
		Update("referral_relationship_id", nil).Error
	if err != nil {
		return fmt.Errorf("detach referral credits: %w", err)
	}
	return nil
}
