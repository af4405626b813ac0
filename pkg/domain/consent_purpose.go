package domain

import dErrors "custodia/pkg/domain-errors"

// ConsentPurpose is a domain value that identifies why data is processed.
// Invariant: the value must be one of the supported consent purposes.
//
// Usage: construct via ParseConsentPurpose at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type ConsentPurpose string

// Supported consent purposes for the cooperative platform.
const (
	PurposeMarketing             ConsentPurpose = "marketing"
	PurposeAnalytics             ConsentPurpose = "analytics"
	PurposeTransactionProcessing ConsentPurpose = "transaction_processing"
	PurposeCreditScoring         ConsentPurpose = "credit_scoring"
	PurposeMemberCommunications  ConsentPurpose = "member_communications"
	PurposeThirdPartySharing     ConsentPurpose = "third_party_sharing"
)

// validConsentPurposes is the single source of truth for valid purposes.
var validConsentPurposes = map[ConsentPurpose]bool{
	PurposeMarketing:             true,
	PurposeAnalytics:             true,
	PurposeTransactionProcessing: true,
	PurposeCreditScoring:         true,
	PurposeMemberCommunications:  true,
	PurposeThirdPartySharing:     true,
}

// ParseConsentPurpose constructs a ConsentPurpose from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported; no
// other errors are expected.
func ParseConsentPurpose(s string) (ConsentPurpose, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "purpose cannot be empty")
	}
	p := ConsentPurpose(s)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid purpose: "+s)
	}
	return p, nil
}

// IsValid checks if the consent purpose is one of the supported enum values.
func (p ConsentPurpose) IsValid() bool {
	return validConsentPurposes[p]
}

// String returns the string representation of the purpose.
func (p ConsentPurpose) String() string {
	return string(p)
}
