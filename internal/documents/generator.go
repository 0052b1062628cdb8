// Package documents generates legal documents for a (customer, property)
// pair and stores them. Generation is idempotent per calendar day (UTC): a
// second request on the same day returns the stored document instead of
// producing a new one.
package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/d9705996/protestpro/internal/apperr"
	"github.com/d9705996/protestpro/internal/forms"
	"github.com/d9705996/protestpro/internal/model"
	"github.com/d9705996/protestpro/internal/pdf"
	"github.com/d9705996/protestpro/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"gorm.io/gorm"
)

const instrumentation = "github.com/d9705996/protestpro/internal/documents"

// Request identifies the document to generate. DocumentType defaults to
// form 50-162.
type Request struct {
	UserID       string `json:"user_id"`
	PropertyID   string `json:"property_id"`
	DocumentType string `json:"document_type,omitempty"`
}

// Result describes the stored document. IsExisting is set when today's
// document already existed and nothing was generated.
type Result struct {
	Filename   string
	DocumentID string
	IsExisting bool
}

// Generator runs the check, fetch, fill, upload and record stages.
type Generator struct {
	db      *gorm.DB
	store   storage.Store
	filler  *pdf.Filler
	layouts map[string]*forms.Layout
	log     *slog.Logger
	timeout time.Duration
	now     func() time.Time

	generated metric.Int64Counter
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the clock used for the generation date.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithCallTimeout bounds each database and blob store call.
func WithCallTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

// New creates a Generator.
func New(db *gorm.DB, store storage.Store, filler *pdf.Filler, layouts map[string]*forms.Layout, log *slog.Logger, opts ...Option) *Generator {
	g := &Generator{
		db:      db,
		store:   store,
		filler:  filler,
		layouts: layouts,
		log:     log,
		now:     time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	c, err := otel.Meter(instrumentation).Int64Counter("protestpro.documents.generated",
		metric.WithDescription("Documents generated, by type and outcome"))
	if err != nil {
		g.generated = noop.Int64Counter{}
	} else {
		g.generated = c
	}
	return g
}

func (g *Generator) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

// Generate returns today's document for the request, generating and
// storing it first when it does not exist yet.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.DocumentType == "" {
		req.DocumentType = model.DocumentTypeForm50162
	}
	ctx, span := otel.Tracer(instrumentation).Start(ctx, "documents.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.type", req.DocumentType),
		attribute.String("user.id", req.UserID),
		attribute.String("property.id", req.PropertyID),
	)

	res, err := g.generate(ctx, req)
	outcome := "generated"
	switch {
	case err != nil:
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case res.IsExisting:
		outcome = "existing"
	}
	g.generated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", req.DocumentType),
		attribute.String("outcome", outcome),
	))
	return res, err
}

func (g *Generator) generate(ctx context.Context, req Request) (*Result, error) {
	if req.UserID == "" || req.PropertyID == "" {
		return nil, apperr.Validation(apperr.CodeMissingField, "identity id and property id are required")
	}
	layout, ok := g.layouts[req.DocumentType]
	mapFn, mapped := forms.Mapper(req.DocumentType)
	if !ok || !mapped {
		return nil, apperr.Validation("unknown_document_type", fmt.Sprintf("unknown document type %q", req.DocumentType))
	}
	now := g.now().UTC()
	today := now.Format(model.GenerationDateLayout)

	existing, err := g.findExisting(ctx, req, today)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		g.log.InfoContext(ctx, "document already generated today",
			"type", req.DocumentType, "user_id", req.UserID, "property_id", req.PropertyID, "path", existing.FilePath)
		return &Result{Filename: existing.FilePath, DocumentID: existing.ID, IsExisting: true}, nil
	}

	in, err := g.loadInput(ctx, req)
	if err != nil {
		return nil, err
	}
	in.Now = now

	var signature []byte
	if in.Application != nil && in.Application.Signature != nil && *in.Application.Signature != "" {
		signature, err = forms.DecodeSignature(*in.Application.Signature)
		if err != nil {
			g.log.WarnContext(ctx, "signature could not be decoded", "user_id", req.UserID, "err", err)
		}
	}
	if layout.Signature.Required && len(signature) == 0 {
		return nil, apperr.Validation("missing_signature", "a signature is required for "+req.DocumentType)
	}

	mapping := mapFn(layout, in)
	for _, w := range mapping.Warnings {
		g.log.WarnContext(ctx, "form mapping", "warning", w, "type", req.DocumentType, "user_id", req.UserID, "property_id", req.PropertyID)
	}

	template, err := g.fetchTemplate(ctx, layout)
	if err != nil {
		return nil, err
	}

	out, rep, err := g.filler.Fill(ctx, layout, template, mapping.Assignments, signature)
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidTemplate) {
			return nil, apperr.Config("template_invalid", "template "+layout.Template+" could not be parsed", err)
		}
		return nil, apperr.Internal("fill_failed", "fill "+req.DocumentType, err)
	}
	g.log.DebugContext(ctx, "document filled",
		"type", req.DocumentType, "filled", len(rep.Filled), "skipped", len(rep.Skipped), "signature_stamped", rep.SignatureStamped)

	path := FilePath(layout.FilePrefix, in.Customer.FirstName, in.Customer.LastName, req.UserID, req.PropertyID, today)
	if err := g.upload(ctx, path, out); err != nil {
		return nil, err
	}

	doc := &model.CustomerDocument{
		UserID:         req.UserID,
		PropertyID:     &req.PropertyID,
		ContactID:      in.Property.ContactID,
		OwnerID:        in.Property.OwnerID,
		DocumentType:   req.DocumentType,
		GenerationDate: today,
		FilePath:       path,
		Status:         "generated",
		GeneratedAt:    now,
	}
	cctx, cancel := g.call(ctx)
	defer cancel()
	if err := g.db.WithContext(cctx).Create(doc).Error; err != nil {
		// The uploaded blob stays behind without a row.
		g.log.ErrorContext(ctx, "document uploaded but not recorded", "bucket", storage.BucketDocuments, "path", path, "err", err)
		return nil, apperr.FromDB("record document", err)
	}

	g.log.InfoContext(ctx, "document generated", "type", req.DocumentType, "user_id", req.UserID, "path", path)
	return &Result{Filename: path, DocumentID: doc.ID}, nil
}

func (g *Generator) findExisting(ctx context.Context, req Request, today string) (*model.CustomerDocument, error) {
	ctx, cancel := g.call(ctx)
	defer cancel()
	var docs []model.CustomerDocument
	err := g.db.WithContext(ctx).
		Where("user_id = ? AND property_id = ? AND document_type = ? AND generation_date = ?",
			req.UserID, req.PropertyID, req.DocumentType, today).
		Limit(1).
		Find(&docs).Error
	if err != nil {
		return nil, apperr.FromDB("check existing document", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return &docs[0], nil
}

// loadInput reads the customer, property, owner and application. Only the
// customer and property are required.
func (g *Generator) loadInput(ctx context.Context, req Request) (forms.Input, error) {
	ctx, cancel := g.call(ctx)
	defer cancel()
	db := g.db.WithContext(ctx)

	var in forms.Input
	var profile model.Profile
	if err := db.Where("user_id = ?", req.UserID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return in, apperr.NotFound("profile_not_found", "no customer profile found")
		}
		return in, apperr.FromDB("fetch customer", err)
	}
	in.Customer = &profile

	var property model.Property
	if err := db.Where("id = ? AND user_id = ?", req.PropertyID, req.UserID).First(&property).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return in, apperr.NotFound("property_not_found", "no property found")
		}
		return in, apperr.FromDB("fetch property", err)
	}
	in.Property = &property

	if property.OwnerID != nil {
		var owner model.Owner
		if err := db.Where("id = ?", *property.OwnerID).First(&owner).Error; err != nil {
			g.log.WarnContext(ctx, "owner not loaded", "owner_id", *property.OwnerID, "err", err)
		} else {
			in.Owner = &owner
		}
	}

	var apps []model.Application
	if err := db.Where("property_id = ? AND user_id = ?", req.PropertyID, req.UserID).
		Order("submitted_at DESC").Limit(1).Find(&apps).Error; err != nil {
		g.log.WarnContext(ctx, "application not loaded", "property_id", req.PropertyID, "err", err)
	} else if len(apps) > 0 {
		in.Application = &apps[0]
	}
	return in, nil
}

func (g *Generator) fetchTemplate(ctx context.Context, l *forms.Layout) ([]byte, error) {
	ctx, cancel := g.call(ctx)
	defer cancel()
	b, err := g.store.Download(ctx, storage.BucketTemplates, l.Template)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return nil, apperr.Config("template_missing", "template "+l.Template+" is not in bucket "+storage.BucketTemplates, err)
	case err != nil:
		return nil, apperr.FromContext("fetch template", err)
	}
	return b, nil
}

func (g *Generator) upload(ctx context.Context, path string, data []byte) error {
	ctx, cancel := g.call(ctx)
	defer cancel()
	err := g.store.Upload(ctx, storage.BucketDocuments, path, data, "application/pdf")
	if errors.Is(err, storage.ErrObjectExists) {
		return apperr.Conflict("document_exists", "a document is already stored at "+path, err)
	}
	return apperr.FromContext("upload document", err)
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Sanitize lowercases s and reduces it to dash-separated alphanumerics.
func Sanitize(s string) string {
	s = strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if s == "" {
		return "unknown"
	}
	return s
}

// FilePath is the storage path of a generated document:
// {first}-{last}-{user}/property-{property}/{prefix}-{first}-{last}-{user}-{property}-{date}.pdf
func FilePath(prefix, firstName, lastName, userID, propertyID, date string) string {
	name := Sanitize(firstName) + "-" + Sanitize(lastName)
	return fmt.Sprintf("%s-%s/property-%s/%s-%s-%s-%s-%s.pdf",
		name, userID, propertyID, prefix, name, userID, propertyID, date)
}
