package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymize(t *testing.T) {
	record := map[string]string{
		"email":        "jane.doe@coop.example",
		"phone":        "+2348012345678",
		"first_name":   "Jane",
		"last_name":    "Doe",
		"address":      "14 Marina Road, Lagos",
		"national_id":  "12345678901",
		"bank_account": "0123456789",
		"member_tier":  "gold", // not PII, passes through
	}

	got := Anonymize(record)

	assert.Equal(t, "j***@coop.example", got["email"])
	assert.Equal(t, "+2****78", got["phone"])
	assert.Equal(t, "J.", got["first_name"])
	assert.Equal(t, "D.", got["last_name"])
	assert.Equal(t, "[redacted]", got["address"])
	assert.Equal(t, "******901", got["national_id"])
	assert.Equal(t, "******789", got["bank_account"])
	assert.Equal(t, "gold", got["member_tier"])

	// Input untouched.
	assert.Equal(t, "jane.doe@coop.example", record["email"])
}

// Masking a masked value with the same mask shape yields the same output.
func TestAnonymize_Idempotent(t *testing.T) {
	records := []map[string]string{
		{
			"email":       "jane.doe@coop.example",
			"phone":       "+2348012345678",
			"name":        "Jane Doe",
			"address":     "14 Marina Road, Lagos",
			"national_id": "12345678901",
		},
		{
			"email":       "j@x.io",
			"phone":       "123",
			"name":        "J",
			"address":     "x",
			"national_id": "19",
		},
		{
			"email":       "",
			"phone":       "",
			"name":        "",
			"address":     "",
			"national_id": "",
		},
	}

	for _, record := range records {
		once := Anonymize(record)
		twice := Anonymize(once)
		assert.Equal(t, once, twice)
	}
}

func TestMaskers_ShortValues(t *testing.T) {
	assert.Equal(t, "****", maskGeneric("ab"))
	assert.Equal(t, "****", maskGeneric("****"))
	assert.Equal(t, "***", maskNationalID("12"))
	assert.Equal(t, "", maskGeneric(""))
	assert.Equal(t, "*@x.io", maskEmail("@x.io"))
	assert.Equal(t, "****", maskEmail("ab")) // no @, generic fallback
}
