package npi

import "github.com/gyeh/npi-enrich/internal/domain"

// AllowedCodeSet is the ordered whitelist of primary taxonomy codes.
// Membership is exact, case-sensitive string equality.
type AllowedCodeSet struct {
	codes []string
	index map[string]struct{}
}

// NewAllowedCodeSet copies codes into a new set, keeping their order.
func NewAllowedCodeSet(codes []string) AllowedCodeSet {
	s := AllowedCodeSet{
		codes: make([]string, 0, len(codes)),
		index: make(map[string]struct{}, len(codes)),
	}
	for _, c := range codes {
		if _, dup := s.index[c]; dup {
			continue
		}
		s.index[c] = struct{}{}
		s.codes = append(s.codes, c)
	}
	return s
}

// Contains reports whether code is in the set.
func (s AllowedCodeSet) Contains(code string) bool {
	_, ok := s.index[code]
	return ok
}

// Codes returns a copy of the codes in configured order.
func (s AllowedCodeSet) Codes() []string {
	return append([]string(nil), s.codes...)
}

// Accept reports whether a normalized record's primary taxonomy code is
// allowed. Records without a primary taxonomy are rejected.
func (s AllowedCodeSet) Accept(rec domain.Record) bool {
	code, ok := rec.Get(domain.FieldPrimaryTaxonomyCode)
	if !ok {
		return false
	}
	return s.Contains(code)
}
