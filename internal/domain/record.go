// Package domain holds the values that flow through an enrichment run:
// the identities read from input, the flat records written to output, and
// the error kinds used to classify failures.
package domain

import "strings"

// InputIdentity is a first/last name pair used as a registry lookup key.
type InputIdentity struct {
	FirstName string
	LastName  string
}

func (id InputIdentity) String() string {
	return strings.TrimSpace(id.FirstName + " " + id.LastName)
}

// Output column names, in the order the normalizer emits them.
const (
	FieldFirstName           = "first_name"
	FieldLastName            = "last_name"
	FieldGender              = "gender"
	FieldNPI                 = "npi"
	FieldSoleProprietor      = "sole_proprietor"
	FieldStatus              = "status"
	FieldMailingStreet       = "mailing_address_street"
	FieldMailingCity         = "mailing_address_city"
	FieldMailingState        = "mailing_address_state"
	FieldMailingZipcode      = "mailing_address_zipcode"
	FieldPracticeStreet      = "primary_practice_street"
	FieldPracticeCity        = "primary_practice_city"
	FieldPracticeState       = "primary_practice_state"
	FieldPracticeZipcode     = "primary_practice_zipcode"
	FieldLicenseState        = "state"
	FieldLicenseNumber       = "license_number"
	FieldPrimaryTaxonomyCode = "primary_taxonomy_code"
	FieldPrimaryTaxonomyDesc = "primary_taxonomy_desc"
)

// Field is a single named value of a Record.
type Field struct {
	Name  string
	Value string
}

// Record is a flat, ordered set of named values. A field the source did not
// provide is simply not present; writers render it as an empty cell.
type Record []Field

// Get returns the value of the named field and whether it is present.
func (r Record) Get(name string) (string, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Header computes the union of field names across records in first-seen order.
func Header(records []Record) []string {
	seen := map[string]struct{}{}
	var header []string
	for _, r := range records {
		for _, f := range r {
			if _, ok := seen[f.Name]; ok {
				continue
			}
			seen[f.Name] = struct{}{}
			header = append(header, f.Name)
		}
	}
	return header
}

// Row renders r against header; absent fields become empty strings.
func (r Record) Row(header []string) []string {
	row := make([]string, len(header))
	for i, name := range header {
		row[i], _ = r.Get(name)
	}
	return row
}
