package model

import "time"

// RelationshipType identifies the kind of directed edge between two accounts.
type RelationshipType int

const (
	RelationshipFollows RelationshipType = 1
	RelationshipBlocks  RelationshipType = 2
	RelationshipMutes   RelationshipType = 3
)

func (t RelationshipType) String() string {
	switch t {
	case RelationshipFollows:
		return "follows"
	case RelationshipBlocks:
		return "blocks"
	case RelationshipMutes:
		return "mutes"
	default:
		return "unknown"
	}
}

func (t RelationshipType) Valid() bool {
	return t == RelationshipFollows || t == RelationshipBlocks || t == RelationshipMutes
}

// Relationship is a directed typed edge between two accounts. At most one
// row exists per (type, subject, object). Updated records the last time the
// edge was confirmed, either by a mutation or by a completed listing walk.
// Until, when set, schedules automatic removal by the expiry sweep.
type Relationship struct {
	ID        int64            `db:"id" json:"id"`
	SubjectID int64            `db:"subject_id" json:"subjectId"`
	Type      RelationshipType `db:"type" json:"type"`
	ObjectID  int64            `db:"object_id" json:"objectId"`
	Updated   time.Time        `db:"updated" json:"updated"`
	Until     *time.Time       `db:"until" json:"until,omitempty"`
}

// TargetSelector picks an account either by remote id or by screen name.
// Exactly one field must be set.
type TargetSelector struct {
	ID         int64  `json:"id,omitempty"`
	ScreenName string `json:"screenName,omitempty"`
}

func (s TargetSelector) Valid() bool {
	return (s.ID != 0) != (s.ScreenName != "")
}

// RelationshipFilter selects edges for removal or lookup. Zero fields are
// ignored.
type RelationshipFilter struct {
	SubjectID     int64
	ObjectID      int64
	Type          RelationshipType
	UpdatedBefore *time.Time
}
