package pdf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg" // signature images may be JPEG
	_ "image/png"  // signature images are usually PNG
	"math"
	"strconv"

	"github.com/d9705996/protestpro/internal/forms"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/form"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PDFCPU is the pdfcpu-backed Engine.
type PDFCPU struct {
	conf *model.Configuration
}

// NewPDFCPU creates the engine. pdfcpu's on-disk configuration directory
// is disabled; the process never writes outside its data stores.
func NewPDFCPU() *PDFCPU {
	model.ConfigPath = "disable"
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFCPU{conf: conf}
}

// config returns a copy of the engine configuration for one command.
func (e *PDFCPU) config(cmd model.CommandMode) *model.Configuration {
	c := *e.conf
	c.Cmd = cmd
	return &c
}

// Fields lists the template's form fields. A document without an AcroForm
// has none; only a document that does not parse is an error.
func (e *PDFCPU) Fields(doc []byte) ([]TemplateField, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(doc), e.config(model.LISTFORMFIELDS))
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if ctx.Form == nil {
		return nil, nil
	}
	if _, ok := ctx.Form.Find("Fields"); !ok {
		return nil, nil
	}
	fs, _, err := form.FormFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("list form fields: %w", err)
	}
	out := make([]TemplateField, 0, len(fs))
	for _, f := range fs {
		t := FieldOther
		switch f.Typ {
		case form.FTText, form.FTDate:
			t = FieldText
		case form.FTCheckBox:
			t = FieldCheckbox
		}
		out = append(out, TemplateField{Name: f.Name, Type: t})
	}
	return out, nil
}

type fillJSON struct {
	Forms []fillForm `json:"forms"`
}

type fillForm struct {
	TextFields []fillText  `json:"textfield,omitempty"`
	CheckBoxes []fillCheck `json:"checkbox,omitempty"`
}

type fillText struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type fillCheck struct {
	Name  string `json:"name"`
	Value bool   `json:"value"`
}

// Fill sets the named text fields and checkboxes and returns the updated
// document.
func (e *PDFCPU) Fill(doc []byte, text map[string]string, checks map[string]bool) ([]byte, error) {
	var f fillForm
	for name, v := range text {
		f.TextFields = append(f.TextFields, fillText{Name: name, Value: v})
	}
	for name, v := range checks {
		f.CheckBoxes = append(f.CheckBoxes, fillCheck{Name: name, Value: v})
	}
	payload, err := json.Marshal(fillJSON{Forms: []fillForm{f}})
	if err != nil {
		return nil, fmt.Errorf("encode form data: %w", err)
	}
	var out bytes.Buffer
	if err := api.FillForm(bytes.NewReader(doc), bytes.NewReader(payload), &out, e.config(model.FILLFORMFIELDS)); err != nil {
		return nil, fmt.Errorf("fill form: %w", err)
	}
	return out.Bytes(), nil
}

// PageCount returns the number of pages in doc.
func (e *PDFCPU) PageCount(doc []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(doc), e.config(model.VALIDATE))
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

// StampImage draws img on the layout's page, scaled to fit its box and
// anchored at its bottom-left corner.
func (e *PDFCPU) StampImage(doc, img []byte, at forms.SignatureLayout) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode signature image: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("signature image has no area")
	}
	scale := math.Min(at.Width/float64(cfg.Width), at.Height/float64(cfg.Height))

	desc := fmt.Sprintf("pos:bl, off:%s %s, sc:%s abs, rot:0, op:1",
		ftoa(at.X), ftoa(at.Y), ftoa(scale))
	wm, err := api.ImageWatermarkForReader(bytes.NewReader(img), desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("build signature stamp: %w", err)
	}
	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(doc), &out, []string{strconv.Itoa(at.Page)}, wm, e.config(model.ADDWATERMARKS)); err != nil {
		return nil, fmt.Errorf("stamp signature: %w", err)
	}
	return out.Bytes(), nil
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
