package npi

import (
	"bytes"
	"encoding/json"
)

// Profile is one entry of the registry's "results" array. Every field may be
// absent in the payload; pointer and nil-slice fields record that absence so
// the normalizer can degrade to empty output instead of failing.
type Profile struct {
	Number     *Text      `json:"number"`
	Basic      *Basic     `json:"basic"`
	Addresses  []Address  `json:"addresses"`
	Taxonomies []Taxonomy `json:"taxonomies"`
}

// Basic is the registry's "basic" block for an individual provider.
type Basic struct {
	FirstName      *Text `json:"first_name"`
	LastName       *Text `json:"last_name"`
	Gender         *Text `json:"gender"`
	SoleProprietor *Text `json:"sole_proprietor"`
	Status         *Text `json:"status"`
}

// Address is one registry address. AddressPurpose is "MAILING" or "LOCATION".
type Address struct {
	AddressPurpose *Text `json:"address_purpose"`
	Address1       *Text `json:"address_1"`
	Address2       *Text `json:"address_2"`
	City           *Text `json:"city"`
	State          *Text `json:"state"`
	PostalCode     *Text `json:"postal_code"`
}

// Taxonomy is one classification entry; at most one is expected to be primary.
type Taxonomy struct {
	Primary bool  `json:"primary"`
	Code    *Text `json:"code"`
	Desc    *Text `json:"desc"`
	State   *Text `json:"state"`
	License *Text `json:"license"`
}

type apiResponse struct {
	ResultCount int       `json:"result_count"`
	Results     []Profile `json:"results"`
}

// Text is a registry scalar rendered as a string. The registry is not
// consistent about quoting (e.g. "number" arrives as a string or a number),
// so both forms are accepted; null leaves the pointer nil.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*t = Text(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	if b {
		*t = "true"
	} else {
		*t = "false"
	}
	return nil
}

// value returns the text, or "" and false when the field was absent.
func (t *Text) value() (string, bool) {
	if t == nil {
		return "", false
	}
	return string(*t), true
}

// String returns the text or "" when absent.
func (t *Text) String() string {
	v, _ := t.value()
	return v
}
