package domain

import dErrors "custodia/pkg/domain-errors"

// LegalBasis is the lawful ground justifying processing of personal data.
type LegalBasis string

const (
	BasisConsent            LegalBasis = "consent"
	BasisContract           LegalBasis = "contract"
	BasisLegalObligation    LegalBasis = "legal_obligation"
	BasisLegitimateInterest LegalBasis = "legitimate_interest"
	BasisVitalInterest      LegalBasis = "vital_interest"
	BasisPublicTask         LegalBasis = "public_task"
)

var validLegalBases = map[LegalBasis]bool{
	BasisConsent:            true,
	BasisContract:           true,
	BasisLegalObligation:    true,
	BasisLegitimateInterest: true,
	BasisVitalInterest:      true,
	BasisPublicTask:         true,
}

// ParseLegalBasis constructs a LegalBasis from external input.
func ParseLegalBasis(s string) (LegalBasis, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "legal basis cannot be empty")
	}
	b := LegalBasis(s)
	if !b.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid legal basis: "+s)
	}
	return b, nil
}

// IsValid checks if the basis is one of the supported enum values.
func (b LegalBasis) IsValid() bool {
	return validLegalBases[b]
}

// RequiresStatutoryRetention reports whether data held under this basis is
// subject to a statutory retention obligation. Expired records under such a
// basis are archived rather than deleted.
func (b LegalBasis) RequiresStatutoryRetention() bool {
	return b == BasisLegalObligation
}

// String returns the string representation of the basis.
func (b LegalBasis) String() string {
	return string(b)
}
