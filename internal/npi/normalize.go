package npi

import (
	"github.com/gyeh/npi-enrich/internal/config"
	"github.com/gyeh/npi-enrich/internal/domain"
)

// Normalizer flattens registry profiles into output records.
type Normalizer struct {
	MailingPurpose  string
	LocationPurpose string
}

// NewNormalizer returns a Normalizer using the address purpose tags from cfg.
func NewNormalizer(cfg config.Config) Normalizer {
	return Normalizer{
		MailingPurpose:  cfg.MailingPurpose,
		LocationPurpose: cfg.LocationPurpose,
	}
}

// Normalize maps one profile to a flat record. It never fails: a missing
// block or field simply leaves the derived fields out of the record.
//
// When no address carries the mailing (or location) purpose, every field of
// that address is absent. A matching address always yields a street field
// holding the joining space, even when both of its lines are missing.
func (n Normalizer) Normalize(p Profile) domain.Record {
	var rec domain.Record
	add := func(name string, t *Text) {
		if v, ok := t.value(); ok {
			rec = append(rec, domain.Field{Name: name, Value: v})
		}
	}

	basic := p.Basic
	if basic == nil {
		basic = &Basic{}
	}
	add(domain.FieldFirstName, basic.FirstName)
	add(domain.FieldLastName, basic.LastName)
	add(domain.FieldGender, basic.Gender)
	add(domain.FieldNPI, p.Number)
	add(domain.FieldSoleProprietor, basic.SoleProprietor)
	add(domain.FieldStatus, basic.Status)

	mailing := firstAddress(p.Addresses, n.MailingPurpose)
	if mailing != nil {
		rec = append(rec, domain.Field{Name: domain.FieldMailingStreet, Value: street(mailing)})
		add(domain.FieldMailingCity, mailing.City)
		add(domain.FieldMailingState, mailing.State)
		add(domain.FieldMailingZipcode, mailing.PostalCode)
	}

	practice := firstAddress(p.Addresses, n.LocationPurpose)
	if practice != nil {
		rec = append(rec, domain.Field{Name: domain.FieldPracticeStreet, Value: street(practice)})
		add(domain.FieldPracticeCity, practice.City)
		add(domain.FieldPracticeState, practice.State)
		add(domain.FieldPracticeZipcode, practice.PostalCode)
	}

	if tax := PrimaryTaxonomy(p.Taxonomies); tax != nil {
		add(domain.FieldLicenseState, tax.State)
		add(domain.FieldLicenseNumber, tax.License)
		add(domain.FieldPrimaryTaxonomyCode, tax.Code)
		add(domain.FieldPrimaryTaxonomyDesc, tax.Desc)
	}

	return rec
}

// PrimaryTaxonomy returns the first taxonomy flagged primary, or nil.
func PrimaryTaxonomy(taxonomies []Taxonomy) *Taxonomy {
	for i := range taxonomies {
		if taxonomies[i].Primary {
			return &taxonomies[i]
		}
	}
	return nil
}

func firstAddress(addrs []Address, purpose string) *Address {
	for i := range addrs {
		if p, ok := addrs[i].AddressPurpose.value(); ok && p == purpose {
			return &addrs[i]
		}
	}
	return nil
}

func street(a *Address) string {
	return a.Address1.String() + " " + a.Address2.String()
}
