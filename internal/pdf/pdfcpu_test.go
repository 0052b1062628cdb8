package pdf_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/d9705996/protestpro/internal/forms"
	"github.com/d9705996/protestpro/internal/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const formTemplateJSON = `{
	"paper": "A4P",
	"origin": "LowerLeft",
	"fonts": {
		"input": {"name": "Helvetica", "size": 12}
	},
	"pages": {
		"1": {
			"content": {
				"textfield": [{"id": "Name", "pos": [100, 700], "width": 200}],
				"checkbox": [{"id": "Owner", "pos": [100, 650], "width": 12}]
			}
		}
	}
}`

const plainTemplateJSON = `{
	"paper": "A4P",
	"origin": "LowerLeft",
	"pages": {
		"1": {
			"content": {
				"text": [{"value": "Services Agreement", "pos": [100, 700], "font": {"name": "Helvetica", "size": 12}}]
			}
		}
	}
}`

// build renders a template from pdfcpu's JSON page description. Call it
// after pdf.NewPDFCPU, which turns off pdfcpu's config directory.
func build(t *testing.T, layout string) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, api.Create(nil, strings.NewReader(layout), &buf, nil))
	return buf.Bytes()
}

func TestPDFCPU_Fields(t *testing.T) {
	engine := pdf.NewPDFCPU()
	doc := build(t, formTemplateJSON)

	fields, err := engine.Fields(doc)
	require.NoError(t, err)
	types := map[string]pdf.FieldType{}
	for _, f := range fields {
		types[f.Name] = f.Type
	}
	assert.Equal(t, map[string]pdf.FieldType{"Name": pdf.FieldText, "Owner": pdf.FieldCheckbox}, types)
}

func TestPDFCPU_FillRoundTrip(t *testing.T) {
	engine := pdf.NewPDFCPU()
	doc := build(t, formTemplateJSON)

	out, err := engine.Fill(doc, map[string]string{"Name": "Jane Doe"}, map[string]bool{"Owner": true})
	require.NoError(t, err)

	fields, err := api.FormFields(bytes.NewReader(out), nil)
	require.NoError(t, err)
	values := map[string]string{}
	for _, f := range fields {
		values[f.Name] = f.V
	}
	assert.Equal(t, "Jane Doe", values["Name"])

	n, err := engine.PageCount(out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPDFCPU_DocumentWithoutForm(t *testing.T) {
	engine := pdf.NewPDFCPU()
	doc := build(t, plainTemplateJSON)

	fields, err := engine.Fields(doc)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestPDFCPU_NotAPDF(t *testing.T) {
	_, err := pdf.NewPDFCPU().Fields([]byte("not a pdf"))
	assert.Error(t, err)
}

func TestFill_TemplateWithoutFormStillProducesOutput(t *testing.T) {
	engine := pdf.NewPDFCPU()
	doc := build(t, plainTemplateJSON)
	f := pdf.NewFiller(engine, discard())

	out, rep, err := f.Fill(context.Background(), &forms.Layout{}, doc, []forms.Assignment{
		{Name: "Date_1", Kind: forms.KindText, Text: "03/07/2025"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, doc, out)
	assert.Equal(t, []string{"Date_1"}, rep.Skipped)
}
