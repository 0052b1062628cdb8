// Package export bundles generated documents matching a filter into one zip
// archive and hands back a time-limited download link.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/d9705996/protestpro/internal/apperr"
	"github.com/d9705996/protestpro/internal/audit"
	"github.com/d9705996/protestpro/internal/authz"
	"github.com/d9705996/protestpro/internal/model"
	"github.com/d9705996/protestpro/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const instrumentation = "github.com/d9705996/protestpro/internal/export"

// All disables a filter.
const All = "__all__"

// Filters narrows the exported documents. Empty values and All match
// everything. GeneratedAt is a lower bound, as a date or an RFC 3339 time.
type Filters struct {
	County      string `json:"county,omitempty"`
	Status      string `json:"status,omitempty"`
	GeneratedAt string `json:"generated_at,omitempty"`
}

// Result describes the uploaded archive.
type Result struct {
	DownloadURL string `json:"downloadUrl"`
	FileCount   int    `json:"fileCount"`
	ErrorCount  int    `json:"errorCount"`
	FileName    string `json:"fileName"`
}

// Authorizer confirms administrator standing. authz.Checker satisfies it.
type Authorizer interface {
	Require(ctx context.Context, userID, obj, act string) error
}

// Packager runs exports.
type Packager struct {
	db          *gorm.DB
	store       storage.Store
	authz       Authorizer
	audit       audit.Publisher
	log         *slog.Logger
	concurrency int
	urlTTL      time.Duration
	timeout     time.Duration
	now         func() time.Time
}

// Option configures a Packager.
type Option func(*Packager)

// WithConcurrency bounds the number of parallel downloads.
func WithConcurrency(n int) Option {
	return func(p *Packager) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithURLTTL sets the lifetime of the download link.
func WithURLTTL(d time.Duration) Option {
	return func(p *Packager) {
		if d > 0 {
			p.urlTTL = d
		}
	}
}

// WithCallTimeout bounds each database and blob store call.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Packager) { p.timeout = d }
}

// WithClock overrides the clock used for the archive name.
func WithClock(now func() time.Time) Option {
	return func(p *Packager) { p.now = now }
}

// New creates a Packager. Downloads default to 4 in parallel and links to
// one hour.
func New(db *gorm.DB, store storage.Store, az Authorizer, pub audit.Publisher, log *slog.Logger, opts ...Option) *Packager {
	p := &Packager{
		db:          db,
		store:       store,
		authz:       az,
		audit:       pub,
		log:         log,
		concurrency: 4,
		urlTTL:      time.Hour,
		now:         time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Packager) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// Export archives every matching document on behalf of actorID. A document
// whose blob cannot be read is skipped and counted; the export fails only
// when nothing could be read.
func (p *Packager) Export(ctx context.Context, actorID string, f Filters) (*Result, error) {
	ctx, span := otel.Tracer(instrumentation).Start(ctx, "export.Export")
	defer span.End()

	res, err := p.export(ctx, actorID, f)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("export.files", res.FileCount), attribute.Int("export.errors", res.ErrorCount))

	if err := p.audit.Publish(ctx, audit.Event{
		Type:    audit.EventDocumentExport,
		ActorID: actorID,
		Success: true,
		Details: map[string]any{"filters": f, "fileName": res.FileName, "fileCount": res.FileCount, "errorCount": res.ErrorCount},
	}); err != nil {
		p.log.WarnContext(ctx, "audit event not recorded", "err", err)
	}
	return res, nil
}

func (p *Packager) export(ctx context.Context, actorID string, f Filters) (*Result, error) {
	if err := p.authz.Require(ctx, actorID, authz.ObjDocuments, authz.ActExport); err != nil {
		return nil, err
	}
	docs, err := p.query(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperr.NotFound("no_documents", "no documents found matching filters")
	}

	blobs := p.download(ctx, docs)
	archive, files, err := bundle(docs, blobs)
	if err != nil {
		return nil, apperr.Internal("archive_failed", "build archive", err)
	}
	failed := len(docs) - files
	if files == 0 {
		return nil, apperr.Internal("no_documents_processed", "no documents could be processed", nil)
	}

	name := "exports/documents_" + stamp.Replace(p.now().UTC().Format("2006-01-02T15:04:05.000Z")) + ".zip"
	cctx, cancel := p.call(ctx)
	defer cancel()
	if err := p.store.Upload(cctx, storage.BucketDocuments, name, archive, "application/zip"); err != nil {
		return nil, apperr.FromContext("upload archive", err)
	}
	link, err := p.store.SignedURL(cctx, storage.BucketDocuments, name, p.urlTTL)
	if err != nil {
		return nil, apperr.FromContext("sign archive url", err)
	}

	p.log.InfoContext(ctx, "documents exported", "file", name, "files", files, "errors", failed)
	return &Result{DownloadURL: link, FileCount: files, ErrorCount: failed, FileName: name}, nil
}

func (p *Packager) query(ctx context.Context, f Filters) ([]model.DocumentReport, error) {
	ctx, cancel := p.call(ctx)
	defer cancel()
	q := p.db.WithContext(ctx).Model(&model.DocumentReport{}).
		Select("id", "document_type", "file_path", "county", "situs_address").
		Order("generated_at, id")
	if set(f.County) {
		q = q.Where("county = ?", f.County)
	}
	if set(f.Status) {
		q = q.Where("status = ?", f.Status)
	}
	if set(f.GeneratedAt) {
		since, err := parseSince(f.GeneratedAt)
		if err != nil {
			return nil, apperr.Validation("invalid_filter", "generated_at must be a date or RFC 3339 time")
		}
		q = q.Where("generated_at >= ?", since.UTC())
	}
	var docs []model.DocumentReport
	if err := q.Find(&docs).Error; err != nil {
		return nil, apperr.FromDB("query documents", err)
	}
	return docs, nil
}

var stamp = strings.NewReplacer(":", "-", ".", "-")

func set(v string) bool { return v != "" && v != All }

func parseSince(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(model.GenerationDateLayout, v)
}

// download fetches each document's blob, at most p.concurrency at a time.
// A nil entry marks a failed download.
func (p *Packager) download(ctx context.Context, docs []model.DocumentReport) [][]byte {
	blobs := make([][]byte, len(docs))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, d := range docs {
		g.Go(func() error {
			cctx, cancel := p.call(ctx)
			defer cancel()
			b, err := p.store.Download(cctx, storage.BucketDocuments, d.FilePath)
			if err != nil {
				p.log.WarnContext(ctx, "export download failed", "bucket", storage.BucketDocuments, "path", d.FilePath, "err", err)
				return nil
			}
			blobs[i] = b
			return nil
		})
	}
	_ = g.Wait()
	return blobs
}

// bundle zips the downloaded blobs and reports how many were added.
func bundle(docs []model.DocumentReport, blobs [][]byte) ([]byte, int, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	used := map[string]int{}
	files := 0
	for i, d := range docs {
		if blobs[i] == nil {
			continue
		}
		name := uniqueName(used, EntryName(d))
		w, err := zw.Create(name)
		if err != nil {
			return nil, 0, fmt.Errorf("add %s: %w", name, err)
		}
		if _, err := w.Write(blobs[i]); err != nil {
			return nil, 0, fmt.Errorf("write %s: %w", name, err)
		}
		files++
	}
	if err := zw.Close(); err != nil {
		return nil, 0, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), files, nil
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// EntryName is the archive name of a document:
// {county|Unknown}_{address with non-alphanumerics as _ |id}_{type}.pdf
// where type is form50162 or services_agreement.
func EntryName(d model.DocumentReport) string {
	county := "Unknown"
	if d.County != nil && *d.County != "" {
		county = *d.County
	}
	subject := d.ID
	if d.SitusAddress != nil && *d.SitusAddress != "" {
		subject = nonAlnum.ReplaceAllString(*d.SitusAddress, "_")
	}
	return county + "_" + subject + "_" + entryType(d.DocumentType) + ".pdf"
}

func entryType(documentType string) string {
	switch documentType {
	case "", model.DocumentTypeForm50162:
		return "form50162"
	case model.DocumentTypeServicesAgreement:
		return "services_agreement"
	}
	return nonAlnum.ReplaceAllString(documentType, "_")
}

func uniqueName(used map[string]int, name string) string {
	used[name]++
	if n := used[name]; n > 1 {
		const ext = ".pdf"
		return name[:len(name)-len(ext)] + "_" + strconv.Itoa(n) + ext
	}
	return name
}
