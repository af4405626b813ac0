package domain

import (
	"github.com/google/uuid"

	dErrors "custodia/pkg/domain-errors"
)

// Typed identifiers over uuid.UUID. The distinct types prevent a subject ID
// from being passed where a breach ID is expected.
//
// Invariant: IDs must be valid, non-empty, non-nil UUIDs. Construct via the
// ParseX functions at trust boundaries; direct conversion bypasses validation.
type (
	// SubjectID identifies a data subject (the member whose data we govern).
	SubjectID uuid.UUID

	// BreachID identifies a reported data breach.
	BreachID uuid.UUID

	// PolicyID identifies a retention policy.
	PolicyID uuid.UUID

	// ActivityID identifies a data-processing activity referenced from
	// audit entries.
	ActivityID uuid.UUID
)

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return u, nil
}

// ParseSubjectID constructs a SubjectID from external input.
func ParseSubjectID(s string) (SubjectID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return SubjectID{}, err
	}
	return SubjectID(u), nil
}

// ParseBreachID constructs a BreachID from external input.
func ParseBreachID(s string) (BreachID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return BreachID{}, err
	}
	return BreachID(u), nil
}

// ParsePolicyID constructs a PolicyID from external input.
func ParsePolicyID(s string) (PolicyID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return PolicyID{}, err
	}
	return PolicyID(u), nil
}

// ParseActivityID constructs an ActivityID from external input.
func ParseActivityID(s string) (ActivityID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return ActivityID{}, err
	}
	return ActivityID(u), nil
}

// NewSubjectID returns a fresh random SubjectID.
func NewSubjectID() SubjectID { return SubjectID(uuid.New()) }

// NewBreachID returns a fresh random BreachID.
func NewBreachID() BreachID { return BreachID(uuid.New()) }

// NewPolicyID returns a fresh random PolicyID.
func NewPolicyID() PolicyID { return PolicyID(uuid.New()) }

// NewActivityID returns a fresh random ActivityID.
func NewActivityID() ActivityID { return ActivityID(uuid.New()) }

func (id SubjectID) String() string  { return uuid.UUID(id).String() }
func (id BreachID) String() string   { return uuid.UUID(id).String() }
func (id PolicyID) String() string   { return uuid.UUID(id).String() }
func (id ActivityID) String() string { return uuid.UUID(id).String() }

// UUID exposes the underlying uuid for storage drivers.
func (id SubjectID) UUID() uuid.UUID  { return uuid.UUID(id) }
func (id BreachID) UUID() uuid.UUID   { return uuid.UUID(id) }
func (id PolicyID) UUID() uuid.UUID   { return uuid.UUID(id) }
func (id ActivityID) UUID() uuid.UUID { return uuid.UUID(id) }

func (id SubjectID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id BreachID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id PolicyID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ActivityID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
