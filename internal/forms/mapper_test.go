package forms_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/d9705996/protestpro/internal/forms"
	"github.com/d9705996/protestpro/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

var now = time.Date(2025, time.March, 7, 15, 0, 0, 0, time.UTC)

func layout(t *testing.T, docType string) *forms.Layout {
	t.Helper()
	layouts, err := forms.LoadLayouts()
	require.NoError(t, err)
	l, ok := layouts[docType]
	require.True(t, ok, docType)
	return l
}

func baseInput() forms.Input {
	return forms.Input{
		Customer: &model.Profile{FirstName: "Jane", LastName: "Doe", Phone: ptr("512-555-0100"), Role: ptr("homeowner")},
		Property: &model.Property{SitusAddress: "1 Main St, Austin, TX", County: ptr("Travis"), IncludeAllProperties: ptr(false)},
		Now:      now,
	}
}

// values indexes the mapping by field name.
func values(m forms.Mapping) map[string]forms.Assignment {
	out := make(map[string]forms.Assignment, len(m.Assignments))
	for _, a := range m.Assignments {
		out[a.Name] = a
	}
	return out
}

func TestLoadLayouts(t *testing.T) {
	layouts, err := forms.LoadLayouts()
	require.NoError(t, err)
	assert.Equal(t, []string{model.DocumentTypeForm50162, model.DocumentTypeServicesAgreement}, forms.DocumentTypes(layouts))

	f := layouts[model.DocumentTypeForm50162]
	assert.Equal(t, "form-50-162-template.pdf", f.Template)
	assert.Equal(t, "50-162", f.FilePrefix)
	assert.Equal(t, "Signature1", f.Signature.Field)
	assert.Equal(t, 2, f.Signature.Page)
	assert.InDelta(t, 68.1542, f.Signature.X, 1e-9)
	assert.InDelta(t, 242.502, f.Signature.Y, 1e-9)

	s := layouts[model.DocumentTypeServicesAgreement]
	assert.True(t, s.Signature.Required)
	assert.Empty(t, s.Signature.Field)
	assert.Equal(t, 4, s.Signature.Page)
}

func TestMapForm50162_EntityOwnership(t *testing.T) {
	in := baseInput()
	in.Owner = &model.Owner{
		Name:               "Smith Family Trust Agreement",
		OwnerType:          "trust",
		FormEntityName:     ptr("Smith Family"),
		FormEntityType:     ptr("Trust"),
		EntityRelationship: ptr("Trustee"),
	}

	v := values(forms.MapForm50162(layout(t, model.DocumentTypeForm50162), in))

	assert.Equal(t, "Smith Family Trust", v["Name"].Text)
	assert.Equal(t, "Jane Doe", v["Name of Property Owner"].Text)
	assert.Equal(t, "Trustee", v["Title"].Text)
}

func TestMapForm50162_IndividualOwnership(t *testing.T) {
	in := baseInput()
	in.Owner = &model.Owner{Name: "Jane Doe", OwnerType: model.OwnerTypeIndividual}

	v := values(forms.MapForm50162(layout(t, model.DocumentTypeForm50162), in))

	assert.Equal(t, "Jane Doe", v["Name"].Text)
	assert.Equal(t, "Jane Doe", v["Name of Property Owner"].Text)
	_, hasTitle := v["Title"]
	assert.False(t, hasTitle)
}

func TestMapForm50162_NoOwnerIsIndividual(t *testing.T) {
	v := values(forms.MapForm50162(layout(t, model.DocumentTypeForm50162), baseInput()))
	assert.Equal(t, "Jane Doe", v["Name"].Text)
}

func TestMapForm50162_UnsetOwnerTypeIsIndividual(t *testing.T) {
	in := baseInput()
	in.Owner = &model.Owner{Name: "Smith Family Trust", FormEntityName: ptr("Smith Family")}

	v := values(forms.MapForm50162(layout(t, model.DocumentTypeForm50162), in))

	assert.Equal(t, "Jane Doe", v["Name"].Text)
	assert.Equal(t, "Jane Doe", v["Name of Property Owner"].Text)
	_, hasTitle := v["Title"]
	assert.False(t, hasTitle)
}

func TestEntityName(t *testing.T) {
	cases := []struct {
		name  string
		owner model.Owner
		want  string
	}{
		{"name and type", model.Owner{Name: "x", FormEntityName: ptr("Acme"), FormEntityType: ptr("LLC")}, "Acme LLC"},
		{"falls back to owner name", model.Owner{Name: "Acme Holdings", FormEntityType: ptr("LP")}, "Acme Holdings LP"},
		{"other is not appended", model.Owner{Name: "x", FormEntityName: ptr("Acme"), FormEntityType: ptr("other")}, "Acme"},
		{"no type", model.Owner{Name: "x", FormEntityName: ptr("Acme")}, "Acme"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, forms.EntityName(&tc.owner))
		})
	}
}

func TestMapForm50162_RoleCheckboxExclusivity(t *testing.T) {
	l := layout(t, model.DocumentTypeForm50162)
	roleFields := []string{
		"the property owner",
		"a property manager authorized to designate agents for the owner",
		"other person authorized to act on behalf of the owner other than the person being designated as agent.",
	}

	for _, role := range []string{"homeowner", "property_manager", "authorized_person"} {
		t.Run(role, func(t *testing.T) {
			in := baseInput()
			in.Customer.Role = ptr(role)
			m := forms.MapForm50162(l, in)
			v := values(m)

			checked := 0
			for _, f := range roleFields {
				if v[f].Checked {
					checked++
				}
			}
			assert.Equal(t, 1, checked)
			assert.Empty(t, m.Warnings)
		})
	}

	for _, role := range []string{"tenant", ""} {
		t.Run("unknown "+role, func(t *testing.T) {
			in := baseInput()
			in.Customer.Role = ptr(role)
			m := forms.MapForm50162(l, in)
			v := values(m)

			for _, f := range roleFields {
				a, ok := v[f]
				require.True(t, ok)
				assert.False(t, a.Checked, f)
			}
			assert.Len(t, m.Warnings, 1)
		})
	}
}

func TestMapForm50162_PropertyScope(t *testing.T) {
	l := layout(t, model.DocumentTypeForm50162)

	in := baseInput()
	in.Property.IncludeAllProperties = ptr(true)
	v := values(forms.MapForm50162(l, in))
	assert.True(t, v["all property listed for me at the above address"].Checked)
	assert.False(t, v["the property(ies) listed below:"].Checked)

	in.Property.IncludeAllProperties = nil
	v = values(forms.MapForm50162(l, in))
	assert.False(t, v["all property listed for me at the above address"].Checked)
	assert.True(t, v["the property(ies) listed below:"].Checked)
}

func TestMapForm50162_DatePhoneCounty(t *testing.T) {
	l := layout(t, model.DocumentTypeForm50162)

	in := baseInput()
	v := values(forms.MapForm50162(l, in))
	assert.Equal(t, "03/07/2025", v["Date"].Text)
	assert.Equal(t, "512-555-0100", v["Telephone Number include area code"].Text)
	assert.Equal(t, "Travis", v["Appraisal District Name"].Text)

	in.Customer.Phone = ptr("")
	in.Property.County = nil
	v = values(forms.MapForm50162(l, in))
	_, hasPhone := v["Telephone Number include area code"]
	_, hasCounty := v["Appraisal District Name"]
	assert.False(t, hasPhone)
	assert.False(t, hasCounty)
}

func TestMapForm50162_Signature(t *testing.T) {
	l := layout(t, model.DocumentTypeForm50162)

	in := baseInput()
	in.Application = &model.Application{Signature: ptr("data:image/png;base64,AAAA")}
	v := values(forms.MapForm50162(l, in))
	sig, ok := v["Signature1"]
	require.True(t, ok)
	assert.Equal(t, forms.KindSignature, sig.Kind)
	assert.Equal(t, "data:image/png;base64,AAAA", sig.Text)

	in.Application = &model.Application{}
	v = values(forms.MapForm50162(l, in))
	_, ok = v["Signature1"]
	assert.False(t, ok)
}

func TestMapServicesAgreement(t *testing.T) {
	l := layout(t, model.DocumentTypeServicesAgreement)

	cases := map[string]string{
		"homeowner":         "Home Owner",
		"property_manager":  "Property Manager",
		"authorized_person": "Person Authorized by Home Owner",
		"something-else":    "Home Owner",
	}
	for role, title := range cases {
		in := baseInput()
		in.Customer.Role = ptr(role)
		in.Application = &model.Application{Signature: ptr("data:image/png;base64,AAAA")}
		m := forms.MapServicesAgreement(l, in)
		v := values(m)

		assert.Equal(t, title, v["Title"].Text, role)
		assert.Equal(t, "03/07/2025", v["Date_1"].Text)
		assert.Equal(t, "03/07/2025", v["Date_3"].Text)
		assert.Equal(t, "Jane Doe", v["property owner"].Text)
		assert.Equal(t, "1 Main St, Austin, TX", v["customer address"].Text)

		last := m.Assignments[len(m.Assignments)-1]
		assert.Equal(t, forms.KindSignature, last.Kind)
		assert.Empty(t, last.Name)
	}
}

func TestMapper_Lookup(t *testing.T) {
	_, ok := forms.Mapper(model.DocumentTypeForm50162)
	assert.True(t, ok)
	_, ok = forms.Mapper("form-99")
	assert.False(t, ok)
}

func TestDecodeSignature(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	enc := base64.StdEncoding.EncodeToString(png)

	got, err := forms.DecodeSignature("data:image/png;base64," + enc)
	require.NoError(t, err)
	assert.Equal(t, png, got)

	got, err = forms.DecodeSignature(enc)
	require.NoError(t, err)
	assert.Equal(t, png, got)

	_, err = forms.DecodeSignature("data:image/png;base64,")
	assert.Error(t, err)
	_, err = forms.DecodeSignature("data:image/png;base64,!!!")
	assert.Error(t, err)
}
