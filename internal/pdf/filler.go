// Package pdf fills fixed-layout PDF form templates. Field resolution is by
// exact, case- and punctuation-sensitive name; a field that cannot be
// resolved is logged and skipped. Only a template that fails to load is
// fatal.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/d9705996/protestpro/internal/forms"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ErrInvalidTemplate is returned when the template cannot be parsed.
var ErrInvalidTemplate = errors.New("invalid pdf template")

// FieldType is the type of an AcroForm field as far as filling cares.
type FieldType int

const (
	FieldOther FieldType = iota
	FieldText
	FieldCheckbox
)

// TemplateField is a named field present in a template.
type TemplateField struct {
	Name string
	Type FieldType
}

// Engine performs the raw PDF operations.
type Engine interface {
	Fields(doc []byte) ([]TemplateField, error)
	Fill(doc []byte, text map[string]string, checks map[string]bool) ([]byte, error)
	PageCount(doc []byte) (int, error)
	// StampImage draws img with its lower-left corner at (X, Y) on the
	// 1-based page, scaled to fit within Width x Height points.
	StampImage(doc, img []byte, at forms.SignatureLayout) ([]byte, error)
}

// Report describes what a fill did.
type Report struct {
	Filled           []string
	Skipped          []string
	SignatureStamped bool
}

// Filler applies assignments to templates.
type Filler struct {
	engine Engine
	log    *slog.Logger
}

// NewFiller creates a Filler.
func NewFiller(engine Engine, log *slog.Logger) *Filler {
	return &Filler{engine: engine, log: log}
}

// Fill writes assignments into template and returns the serialized PDF.
// signature is the decoded signature image; it is stamped at the layout's
// fixed placement when the signature field cannot be filled as text. The
// output is produced even when no field could be filled.
func (f *Filler) Fill(ctx context.Context, l *forms.Layout, template []byte, assignments []forms.Assignment, signature []byte) ([]byte, Report, error) {
	_, span := otel.Tracer("github.com/d9705996/protestpro/internal/pdf").Start(ctx, "pdf.Fill")
	defer span.End()

	var rep Report
	fields, err := f.engine.Fields(template)
	if err != nil {
		return nil, rep, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	types := make(map[string]FieldType, len(fields))
	for _, fld := range fields {
		types[fld.Name] = fld.Type
	}

	text := map[string]string{}
	checks := map[string]bool{}
	stamp := false
	for _, a := range assignments {
		typ, found := types[a.Name]
		switch a.Kind {
		case forms.KindText:
			if !found || typ != FieldText {
				f.skip(&rep, a.Name, "text field not found")
				continue
			}
			text[a.Name] = a.Text
		case forms.KindCheckbox:
			if !found || typ != FieldCheckbox {
				f.skip(&rep, a.Name, "checkbox not found")
				continue
			}
			checks[a.Name] = a.Checked
		case forms.KindSignature:
			if a.Name != "" && found && typ == FieldText {
				text[a.Name] = a.Text
				continue
			}
			stamp = true
		}
	}

	out := template
	if len(text)+len(checks) > 0 {
		filled, err := f.engine.Fill(template, text, checks)
		if err != nil {
			f.log.Warn("bulk form fill failed; filling fields one at a time", "err", err)
			out = f.fillEach(template, text, checks, &rep)
		} else {
			out = filled
			for name := range text {
				rep.Filled = append(rep.Filled, name)
			}
			for name := range checks {
				rep.Filled = append(rep.Filled, name)
			}
		}
	}

	if stamp {
		out = f.stamp(out, signature, l.Signature, &rep)
	}
	span.SetAttributes(
		attribute.Int("pdf.fields_filled", len(rep.Filled)),
		attribute.Int("pdf.fields_skipped", len(rep.Skipped)),
		attribute.Bool("pdf.signature_stamped", rep.SignatureStamped),
	)
	return out, rep, nil
}

func (f *Filler) skip(rep *Report, name, reason string) {
	f.log.Warn("form field skipped", "field", name, "reason", reason)
	rep.Skipped = append(rep.Skipped, name)
}

// fillEach applies fields one by one so that a single bad field cannot
// prevent the others from being written.
func (f *Filler) fillEach(doc []byte, text map[string]string, checks map[string]bool, rep *Report) []byte {
	for name, v := range text {
		next, err := f.engine.Fill(doc, map[string]string{name: v}, nil)
		if err != nil {
			f.skip(rep, name, err.Error())
			continue
		}
		doc = next
		rep.Filled = append(rep.Filled, name)
	}
	for name, v := range checks {
		next, err := f.engine.Fill(doc, nil, map[string]bool{name: v})
		if err != nil {
			f.skip(rep, name, err.Error())
			continue
		}
		doc = next
		rep.Filled = append(rep.Filled, name)
	}
	return doc
}

func (f *Filler) stamp(doc, img []byte, at forms.SignatureLayout, rep *Report) []byte {
	if len(img) == 0 {
		f.log.Warn("signature image missing; not stamped")
		return doc
	}
	pages, err := f.engine.PageCount(doc)
	if err != nil || pages < at.Page {
		f.log.Warn("signature page not found; not stamped", "page", at.Page, "pages", pages, "err", err)
		return doc
	}
	out, err := f.engine.StampImage(doc, img, at)
	if err != nil {
		f.log.Warn("stamp signature image", "page", at.Page, "err", err)
		return doc
	}
	rep.SignatureStamped = true
	return out
}
