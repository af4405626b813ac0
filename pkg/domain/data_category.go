package domain

import dErrors "custodia/pkg/domain-errors"

// DataCategory classifies personal data handled by the platform. Categories
// are a closed enumeration so that the high-risk checks in breach response and
// the sensitivity checks in retention cannot silently mismatch on free-form
// strings. New categories (localized terms, biometric variants) must be added
// here as constants, never matched by substring.
type DataCategory string

const (
	CategoryPersonal      DataCategory = "personal"
	CategoryContact       DataCategory = "contact"
	CategoryFinancial     DataCategory = "financial"
	CategoryTransaction   DataCategory = "transaction"
	CategoryNationalID    DataCategory = "national_id"
	CategoryBankAccount   DataCategory = "bank_account"
	CategoryBiometric     DataCategory = "biometric"
	CategoryHealth        DataCategory = "health"
	CategoryCriminal      DataCategory = "criminal"
	CategoryCommunication DataCategory = "communication"
	CategoryBehavioral    DataCategory = "behavioral"
)

var validDataCategories = map[DataCategory]bool{
	CategoryPersonal:      true,
	CategoryContact:       true,
	CategoryFinancial:     true,
	CategoryTransaction:   true,
	CategoryNationalID:    true,
	CategoryBankAccount:   true,
	CategoryBiometric:     true,
	CategoryHealth:        true,
	CategoryCriminal:      true,
	CategoryCommunication: true,
	CategoryBehavioral:    true,
}

// highRiskCategories drive mandatory breach notification regardless of the
// number of affected subjects.
var highRiskCategories = map[DataCategory]bool{
	CategoryFinancial: true,
	CategoryBiometric: true,
	CategoryHealth:    true,
	CategoryCriminal:  true,
}

// sensitiveCategories must be anonymized rather than hard-deleted when their
// retention window lapses: the identifiers may still be needed for dispute
// resolution.
var sensitiveCategories = map[DataCategory]bool{
	CategoryNationalID:  true,
	CategoryBankAccount: true,
	CategoryFinancial:   true,
}

// ParseDataCategory constructs a DataCategory from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseDataCategory(s string) (DataCategory, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "data category cannot be empty")
	}
	c := DataCategory(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid data category: "+s)
	}
	return c, nil
}

// ParseDataCategories parses a batch, rejecting the whole batch on the first
// invalid member.
func ParseDataCategories(values []string) ([]DataCategory, error) {
	if len(values) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one data category is required")
	}
	categories := make([]DataCategory, 0, len(values))
	for _, v := range values {
		c, err := ParseDataCategory(v)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, nil
}

// IsValid checks if the category is one of the supported enum values.
func (c DataCategory) IsValid() bool {
	return validDataCategories[c]
}

// IsHighRisk reports whether a breach of this category triggers mandatory
// notification. Membership is exact enum equality.
func (c DataCategory) IsHighRisk() bool {
	return highRiskCategories[c]
}

// IsSensitive reports whether expired data of this category must be
// anonymized instead of deleted.
func (c DataCategory) IsSensitive() bool {
	return sensitiveCategories[c]
}

// String returns the string representation of the category.
func (c DataCategory) String() string {
	return string(c)
}

// AnyHighRisk reports whether any category in the set is high risk.
func AnyHighRisk(categories []DataCategory) bool {
	for _, c := range categories {
		if c.IsHighRisk() {
			return true
		}
	}
	return false
}
