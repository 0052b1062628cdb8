package forms

import (
	"fmt"
	"strings"
	"time"

	"github.com/d9705996/protestpro/internal/model"
)

// Kind is the kind of template field an Assignment targets.
type Kind string

const (
	KindText      Kind = "text"
	KindCheckbox  Kind = "checkbox"
	KindSignature Kind = "signature"
)

// DateLayout is the MM/DD/YYYY format written into date fields.
const DateLayout = "01/02/2006"

// Customer roles recognised on the signup form.
const (
	RoleHomeowner        = "homeowner"
	RolePropertyManager  = "property_manager"
	RoleAuthorizedPerson = "authorized_person"
)

// Assignment is one value to write into a named template field. Signature
// assignments carry the data URL in Text; Name may be empty when the
// template has no signature field.
type Assignment struct {
	Name    string
	Kind    Kind
	Text    string
	Checked bool
}

// Input is the already-validated record a document is generated from.
// Owner and Application may be nil.
type Input struct {
	Customer    *model.Profile
	Property    *model.Property
	Owner       *model.Owner
	Application *model.Application
	Now         time.Time
}

// Mapping is the result of a mapper: the assignments in rule order plus
// any warnings worth logging.
type Mapping struct {
	Assignments []Assignment
	Warnings    []string
}

func (m *Mapping) text(l *Layout, key, value string) {
	if value == "" {
		return
	}
	if name, ok := l.Field(key); ok {
		m.Assignments = append(m.Assignments, Assignment{Name: name, Kind: KindText, Text: value})
	}
}

func (m *Mapping) check(l *Layout, key string, checked bool) {
	if name, ok := l.Field(key); ok {
		m.Assignments = append(m.Assignments, Assignment{Name: name, Kind: KindCheckbox, Checked: checked})
	}
}

func (m *Mapping) signature(l *Layout, app *model.Application) {
	if app == nil || app.Signature == nil || *app.Signature == "" {
		return
	}
	m.Assignments = append(m.Assignments, Assignment{
		Name: l.Signature.Field,
		Kind: KindSignature,
		Text: *app.Signature,
	})
}

// MapFunc computes the assignments of one document type.
type MapFunc func(l *Layout, in Input) Mapping

var mappers = map[string]MapFunc{
	model.DocumentTypeForm50162:         MapForm50162,
	model.DocumentTypeServicesAgreement: MapServicesAgreement,
}

// Mapper returns the mapping rules for a document type.
func Mapper(documentType string) (MapFunc, bool) {
	fn, ok := mappers[documentType]
	return fn, ok
}

// MapForm50162 maps the appointment-of-agent form. Every rule is applied;
// none returns early.
func MapForm50162(l *Layout, in Input) Mapping {
	var m Mapping
	c := in.Customer

	m.text(l, "phone", deref(c.Phone))
	m.text(l, "date", in.Now.Format(DateLayout))
	m.text(l, "appraisal_district", in.Property.CountyName())

	fullName := c.FullName()
	if o := in.Owner; o != nil && o.IsEntity() {
		m.text(l, "name", EntityName(o))
		// The signer, not the entity.
		m.text(l, "property_owner_name", fullName)
		m.text(l, "title", deref(o.EntityRelationship))
	} else {
		m.text(l, "name", fullName)
		m.text(l, "property_owner_name", fullName)
	}

	all := in.Property.IncludeAllProperties != nil && *in.Property.IncludeAllProperties
	m.check(l, "all_properties", all)
	m.check(l, "listed_properties", !all)

	role := deref(c.Role)
	known := role == RoleHomeowner || role == RolePropertyManager || role == RoleAuthorizedPerson
	m.check(l, "role_owner", role == RoleHomeowner)
	m.check(l, "role_property_manager", role == RolePropertyManager)
	m.check(l, "role_authorized_other", role == RoleAuthorizedPerson)
	if !known {
		m.Warnings = append(m.Warnings, fmt.Sprintf("unrecognized customer role %q: no role checkbox selected", role))
	}

	m.signature(l, in.Application)
	return m
}

// MapServicesAgreement maps the customer services agreement.
func MapServicesAgreement(l *Layout, in Input) Mapping {
	var m Mapping
	today := in.Now.Format(DateLayout)
	for _, key := range []string{"date_1", "date_2", "date_3"} {
		m.text(l, key, today)
	}
	m.text(l, "property_owner", in.Customer.FullName())
	m.text(l, "customer_address", in.Property.SitusAddress)

	title, ok := l.RoleTitles[deref(in.Customer.Role)]
	if !ok {
		title = l.DefaultTitle
	}
	m.text(l, "title", title)

	m.signature(l, in.Application)
	return m
}

// EntityName is the owner's legal entity name with its type appended,
// e.g. "Smith Family" + "Trust". A type of "other" is not appended.
func EntityName(o *model.Owner) string {
	name := deref(o.FormEntityName)
	if name == "" {
		name = o.Name
	}
	if t := deref(o.FormEntityType); name != "" && t != "" && t != "other" {
		name += " " + t
	}
	return strings.TrimSpace(name)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
