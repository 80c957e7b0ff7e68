package session

import "github.com/jonathan/wohnblitz/internal/types"

// FormSelectors lists, per form element, the CSS selectors tried in order.
type FormSelectors struct {
	Form       string
	Salutation []string
	LastName   []string
	FirstName  []string
	Street     []string
	PostalCode []string
	City       []string
	Email      []string
	Phone      []string
	Consent    []string
	Submit     []string
}

// DefaultFormSelectors returns the selectors of the WBM powermail contact form.
func DefaultFormSelectors() FormSelectors {
	return FormSelectors{
		Form:       "form.powermail_form",
		Salutation: []string{"#powermail_field_anrede", "select[name*='anrede']"},
		LastName:   []string{"#powermail_field_name", "input[name*='[name]']"},
		FirstName:  []string{"#powermail_field_vorname", "input[name*='vorname']"},
		Street:     []string{"#powermail_field_strasse", "input[name*='strasse']"},
		PostalCode: []string{"#powermail_field_plz", "input[name*='plz']"},
		City:       []string{"#powermail_field_ort", "input[name*='[ort]']"},
		Email:      []string{"#powermail_field_e_mail", "input[type='email']"},
		Phone:      []string{"#powermail_field_telefon", "input[type='tel']"},
		Consent: []string{
			"#powermail_field_datenschutzhinweis_1",
			"input[id*='datenschutz']",
			"input[id*='privacy']",
		},
		Submit: []string{
			"button.btn-primary[type='submit']",
			"button[type='submit']",
			"[class*='submit']",
		},
	}
}

// formField is one value to type into the form.
type formField struct {
	name      string
	selectors []string
	value     string
	required  bool
	isSelect  bool
}

// fields maps the profile onto the form. Empty optional values are left out;
// empty required values stay in so the lookup reports them.
func (f FormSelectors) fields(p types.ApplicantProfile) []formField {
	city := p.City
	if city == "" {
		city = types.DefaultCity
	}
	all := []formField{
		{name: "salutation", selectors: f.Salutation, value: p.Salutation, isSelect: true},
		{name: "last name", selectors: f.LastName, value: p.LastName, required: true},
		{name: "first name", selectors: f.FirstName, value: p.FirstName},
		{name: "street", selectors: f.Street, value: p.Street},
		{name: "postal code", selectors: f.PostalCode, value: p.PostalCode},
		{name: "city", selectors: f.City, value: city},
		{name: "email", selectors: f.Email, value: p.Email, required: true},
		{name: "phone", selectors: f.Phone, value: p.Phone},
	}

	fields := make([]formField, 0, len(all))
	for _, field := range all {
		if field.value == "" && !field.required {
			continue
		}
		fields = append(fields, field)
	}
	return fields
}
