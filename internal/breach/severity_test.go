package breach_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"custodia/internal/breach"
	id "custodia/pkg/domain"
)

func TestSeverityRules(t *testing.T) {
	lowRisk := []id.DataCategory{id.CategoryContact, id.CategoryBehavioral}
	highRisk := []id.DataCategory{id.CategoryContact, id.CategoryHealth}

	tests := []struct {
		name       string
		categories []id.DataCategory
		subjects   int
		required   bool
		subjectsTo bool
		authority  bool
	}{
		{"low risk, few subjects", lowRisk, 10, false, false, false},
		{"low risk, exactly 50", lowRisk, 50, false, false, false},
		{"low risk, 51 subjects", lowRisk, 51, false, true, false},
		{"low risk, exactly 100", lowRisk, 100, false, true, false},
		{"low risk, 101 subjects", lowRisk, 101, true, true, true},
		{"high risk, few subjects", highRisk, 10, true, true, true},
		{"high risk, zero subjects", highRisk, 0, true, true, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.required, breach.NotificationRequired(tc.categories, tc.subjects))
			assert.Equal(t, tc.subjectsTo, breach.NotifySubjects(tc.categories, tc.subjects))
			assert.Equal(t, tc.authority, breach.ReportToAuthority(tc.categories, tc.subjects))
		})
	}
}

// Financial data is high risk: a breach touching it must reach the authority
// regardless of how few members are affected.
func TestSeverityRules_FinancialWithTenSubjects(t *testing.T) {
	categories := []id.DataCategory{id.CategoryFinancial}

	assert.True(t, breach.NotificationRequired(categories, 10))
	assert.True(t, breach.NotifySubjects(categories, 10))
	assert.True(t, breach.ReportToAuthority(categories, 10))
}

func TestAuthorityDeadline(t *testing.T) {
	reported := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, reported.Add(72*time.Hour), breach.AuthorityDeadline(reported))
}
