// Package audit implements the append-only audit trail: every sensitive
// action in the governance engine is recorded here and never mutated or
// deleted by the engine itself.
package audit

import (
	"time"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
)

// Action is the closed taxonomy of auditable actions. Keeping it an
// enumeration next to the models means a typo'd action fails loudly in tests
// instead of producing an unqueryable trail.
type Action string

const (
	ActionAuthentication     Action = "authentication"
	ActionDataAccess         Action = "data_access"
	ActionDataModification   Action = "data_modification"
	ActionConsentGranted     Action = "consent_granted"
	ActionConsentWithdrawn   Action = "consent_withdrawn"
	ActionConsentChecked     Action = "consent_checked"
	ActionBreachReported     Action = "breach_reported"
	ActionBreachStatusChange Action = "breach_status_changed"
	ActionBreachNotification Action = "breach_notification_sent"
	ActionRetentionApplied   Action = "retention_policy_applied"
	ActionConfigChanged      Action = "config_changed"
)

// EventCategory classifies audit actions by their primary purpose. This
// enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for operational visibility.
	CategoryOperations EventCategory = "operations"
)

// actionCategories maps each audit action to its category.
var actionCategories = map[Action]EventCategory{
	ActionConsentGranted:     CategoryCompliance,
	ActionConsentWithdrawn:   CategoryCompliance,
	ActionBreachReported:     CategoryCompliance,
	ActionBreachStatusChange: CategoryCompliance,
	ActionBreachNotification: CategoryCompliance,
	ActionRetentionApplied:   CategoryCompliance,

	ActionAuthentication: CategorySecurity,
	ActionDataAccess:     CategorySecurity,
	ActionConfigChanged:  CategorySecurity,

	ActionDataModification: CategoryOperations,
	ActionConsentChecked:   CategoryOperations,
}

// Category returns the EventCategory for this action.
// Unknown actions default to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// IsValid reports whether the action belongs to the taxonomy.
func (a Action) IsValid() bool {
	_, ok := actionCategories[a]
	return ok
}

// Entry is one appended audit record. UserID is empty for system actions
// (for example the retention sweep). OldValues/NewValues carry structured
// before/after snapshots for modification events.
type Entry struct {
	ID         uuid.UUID
	UserID     string
	Action     Action
	Resource   string
	ResourceID string
	OldValues  map[string]any
	NewValues  map[string]any
	IPAddress  string
	UserAgent  string
	Timestamp  time.Time
	ActivityID id.ActivityID
}

// Filter narrows audit queries. Zero values are ignored.
type Filter struct {
	UserID     string
	Resource   string
	ResourceID string
	ActivityID id.ActivityID
	From       time.Time
	To         time.Time
	Limit      int
}

// Report aggregates the trail over a window: entry counts grouped by action
// type and by resource type.
type Report struct {
	Start      time.Time
	End        time.Time
	UserID     string
	Total      int
	ByAction   map[Action]int
	ByResource map[string]int
}

// RecordResult is the typed side-channel of the fail-open recorder. A failed
// audit write never aborts the primary operation; callers that care (tests,
// diagnostics) inspect Err.
type RecordResult struct {
	Entry Entry
	Err   error
}

// Ok reports whether the entry was persisted.
func (r RecordResult) Ok() bool { return r.Err == nil }
