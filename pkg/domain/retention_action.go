package domain

// RetentionAction is what the retention engine does with an expired record.
type RetentionAction string

const (
	// ActionAnonymize masks identifying fields in place. Applied to sensitive
	// categories that may still be needed for dispute resolution.
	ActionAnonymize RetentionAction = "anonymize"

	// ActionDelete removes the record entirely.
	ActionDelete RetentionAction = "delete"

	// ActionArchive moves the record to cold storage to satisfy a statutory
	// retention obligation.
	ActionArchive RetentionAction = "archive"
)

// String returns the string representation of the action.
func (a RetentionAction) String() string {
	return string(a)
}
