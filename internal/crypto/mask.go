package crypto

import "strings"

// Field-specific maskers. Every masker is idempotent: masking an already
// masked value yields the same output. That property is what lets the
// retention sweep re-anonymize a record without corrupting it further.

const redactedAddress = "[redacted]"

// maskers maps recognized PII field names (lower-case) to their masker.
var maskers = map[string]func(string) string{
	"email":        maskEmail,
	"phone":        maskGeneric,
	"phone_number": maskGeneric,
	"name":         maskName,
	"first_name":   maskName,
	"last_name":    maskName,
	"full_name":    maskName,
	"address":      maskAddress,
	"national_id":  maskNationalID,
	"nin":          maskNationalID,
	"bank_account": maskNationalID,
}

// Anonymize returns a structurally identical record with each recognized PII
// field replaced by its masked form. Unrecognized fields pass through
// untouched. Anonymize(Anonymize(r)) == Anonymize(r).
func Anonymize(record map[string]string) map[string]string {
	out := make(map[string]string, len(record))
	for k, v := range record {
		if mask, ok := maskers[strings.ToLower(k)]; ok {
			out[k] = mask(v)
		} else {
			out[k] = v
		}
	}
	return out
}

func allMasked(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '*' {
			return false
		}
	}
	return true
}

// maskEmail keeps the first character of the local part and the full domain:
// jane.doe@example.com -> j***@example.com.
func maskEmail(v string) string {
	at := strings.IndexByte(v, '@')
	if at < 0 {
		return maskGeneric(v)
	}
	local, domain := v[:at], v[at+1:]
	if local == "" || allMasked(local) {
		return "*@" + domain
	}
	return local[:1] + "***@" + domain
}

// maskGeneric keeps the first and last two characters with a fixed-width
// mask between: +2348012345678 -> +2****78.
func maskGeneric(v string) string {
	if allMasked(v) || len(v) <= 4 {
		if v == "" {
			return ""
		}
		return "****"
	}
	return v[:2] + "****" + v[len(v)-2:]
}

// maskName keeps the first rune as an initial.
func maskName(v string) string {
	if v == "" {
		return ""
	}
	runes := []rune(v)
	return string(runes[0]) + "."
}

func maskAddress(v string) string {
	if v == "" {
		return ""
	}
	return redactedAddress
}

// maskNationalID keeps only the last three characters. Enough for dispute
// resolution correlation, useless for identification.
func maskNationalID(v string) string {
	if allMasked(v) || len(v) <= 3 {
		if v == "" {
			return ""
		}
		return "***"
	}
	return "******" + v[len(v)-3:]
}
