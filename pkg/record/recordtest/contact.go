// Package recordtest ships the contact reference model used by registry and
// tooling tests across the repository. The model exercises every attribute
// feature: minted identifiers, dependent validators sharing one dependency,
// a no-sync attribute, and a structured canonical default.
package recordtest

import (
	"fmt"
	"strings"

	"recordcore/pkg/record"

	"github.com/google/uuid"
)

// Profile is the structured default carried by every new contact. It
// canonicalises into a plain JSON object so records never share the template
// value.
type Profile struct {
	Locale string
	Theme  string
}

// CanonicalForm returns the JSON-compatible shape stored on the record.
func (p Profile) CanonicalForm() any {
	return map[string]any{
		"locale": p.Locale,
		"theme":  p.Theme,
	}
}

// ContactType compiles the contact model. The phone number and the postal
// code both depend on the country, which is what shared-dependency tests
// lean on.
func ContactType() *record.Type {
	return record.MustType(record.Definition{
		Name: "contact",
		Attributes: []record.Attribute{
			{Key: "guid", Property: "id", Default: func() any { return uuid.NewString() }},
			{Property: "email", Validator: validEmail},
			{Property: "country", Validator: validCountry},
			{Property: "phone", Validator: validPhone, DependsOn: []string{"country"}},
			{Property: "postal_code", Validator: validPostalCode, DependsOn: []string{"country"}},
			{Property: "display_name", NoSync: true, Default: "unnamed contact"},
			{Property: "profile", Default: Profile{Locale: "en", Theme: "light"}},
		},
	})
}

// NewContact returns a fresh transient contact bound to the registry.
func NewContact(reg record.Registry) *record.Entity {
	return record.New(ContactType(), reg)
}

// ValidContact returns a transient contact whose attributes all validate.
// The British phone and postal formats deliberately violate the US rules so
// tests can flip both dependents with one country change.
func ValidContact(reg record.Registry) *record.Entity {
	e := NewContact(reg)
	values := map[string]any{
		"email":       "ada@example.org",
		"country":     "GB",
		"phone":       "+44 20 7946 0958",
		"postal_code": "SW1A 1AA",
	}
	for property, value := range values {
		if err := e.Set(property, value); err != nil {
			panic(fmt.Sprintf("recordtest: seed %s: %v", property, err))
		}
	}
	return e
}

func validEmail(value any, property string, _ *record.Entity) error {
	s, ok := value.(string)
	if !ok || s == "" {
		return fmt.Errorf("%s is required", property)
	}
	if !strings.Contains(s, "@") {
		return fmt.Errorf("%s must contain an @", property)
	}
	return nil
}

func validCountry(value any, property string, _ *record.Entity) error {
	s, ok := value.(string)
	if !ok || len(s) != 2 || s != strings.ToUpper(s) {
		return fmt.Errorf("%s must be a two-letter upper-case code", property)
	}
	return nil
}

func validPhone(value any, property string, e *record.Entity) error {
	s, _ := value.(string)
	if s == "" {
		return fmt.Errorf("%s is required", property)
	}
	if country, _ := e.Get("country").(string); country == "US" && len(digits(s)) != 10 {
		return fmt.Errorf("%s must carry 10 digits in the US", property)
	}
	return nil
}

func validPostalCode(value any, property string, e *record.Entity) error {
	s, _ := value.(string)
	if s == "" {
		return fmt.Errorf("%s is required", property)
	}
	if country, _ := e.Get("country").(string); country == "US" && len(digits(s)) != 5 {
		return fmt.Errorf("%s must carry 5 digits in the US", property)
	}
	return nil
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
