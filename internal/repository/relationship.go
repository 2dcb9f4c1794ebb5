package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/graphwarden/warden-server-go/internal/model"
)

type RelationshipRepository interface {
	// Find looks up the edge (subject, type, target), where the target may
	// be selected by id or screen name.
	Find(ctx context.Context, subjectID int64, typ model.RelationshipType, target model.TargetSelector) (*model.Relationship, error)
	// Exists reports whether the edge (subject, type, target) exists.
	Exists(ctx context.Context, subjectID int64, typ model.RelationshipType, target model.TargetSelector) (bool, error)
	// AddRelationships upserts the cross product subjects x objects.
	// Existing rows get their updated timestamp refreshed; until is only
	// overridden when non-nil, so a listing reconfirmation never clears a
	// scheduled expiry.
	AddRelationships(ctx context.Context, typ model.RelationshipType, subjectIDs, objectIDs []int64, updated time.Time, until *time.Time) error
	// SetUntil rewrites the edge's scheduled expiry unconditionally,
	// last writer wins, including shortening or clearing it. Returns
	// whether an edge matched.
	SetUntil(ctx context.Context, subjectID int64, typ model.RelationshipType, target model.TargetSelector, until *time.Time) (bool, error)
	// Remove deletes the edges matching the filter and returns the count.
	Remove(ctx context.Context, filter model.RelationshipFilter) (int64, error)
	// Delete removes one edge by target selector.
	Delete(ctx context.Context, subjectID int64, typ model.RelationshipType, target model.TargetSelector) (int64, error)
	// FindExpired returns the subject's block/mute edges whose until has
	// passed.
	FindExpired(ctx context.Context, subjectID int64, now time.Time) ([]model.Relationship, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) RelationshipRepository
}

type relationshipRepo struct {
	db sqlxDB
}

func NewRelationshipRepository(db *sqlx.DB) RelationshipRepository {
	return &relationshipRepo{db: db}
}

func (r *relationshipRepo) WithTx(tx *sqlx.Tx) RelationshipRepository {
	return &relationshipRepo{db: tx}
}

// targetClause renders the object-side selector. Screen name selection
// joins through the accounts table.
func targetClause(target model.TargetSelector, argIndex string) (string, interface{}) {
	if target.ID != 0 {
		return "object_id = " + argIndex, target.ID
	}
	return "object_id IN (SELECT id FROM accounts WHERE screen_name_lower = " + argIndex + ")",
		strings.ToLower(target.ScreenName)
}

func (r *relationshipRepo) Find(ctx context.Context, subjectID int64, typ model.RelationshipType, target model.TargetSelector) (*model.Relationship, error) {
	clause, arg := targetClause(target, "$3")
	var rel model.Relationship
	err := r.db.GetContext(ctx, &rel, `
		SELECT * FROM relationships
		WHERE subject_id = $1 AND type = $2 AND `+clause+`
	`, subjectID, typ, arg)
	return HandleNotFound(&rel, err)
}

func (r *relationshipRepo) Exists(ctx context.Context, subjectID int64, typ model.RelationshipType, target model.TargetSelector) (bool, error) {
	rel, err := r.Find(ctx, subjectID, typ, target)
	if err != nil {
		return false, err
	}
	return rel != nil, nil
}

func (r *relationshipRepo) AddRelationships(ctx context.Context, typ model.RelationshipType, subjectIDs, objectIDs []int64, updated time.Time, until *time.Time) error {
	if len(subjectIDs) == 0 || len(objectIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO relationships (subject_id, type, object_id, updated, until)
		SELECT s, $1, o, $2, $3
		FROM unnest($4::bigint[]) AS s CROSS JOIN unnest($5::bigint[]) AS o
		ON CONFLICT (type, subject_id, object_id) DO UPDATE SET
			updated = EXCLUDED.updated,
			until = COALESCE(EXCLUDED.until, relationships.until)
	`, typ, updated, until, int64Array(subjectIDs), int64Array(objectIDs))
	return err
}

func (r *relationshipRepo) SetUntil(ctx context.Context, subjectID int64, typ model.RelationshipType, target model.TargetSelector, until *time.Time) (bool, error) {
	clause, arg := targetClause(target, "$4")
	result, err := r.db.ExecContext(ctx, `
		UPDATE relationships SET until = $3
		WHERE subject_id = $1 AND type = $2 AND `+clause+`
	`, subjectID, typ, until, arg)
	if err != nil {
		return false, err
	}
	count, err := result.RowsAffected()
	return count > 0, err
}

func (r *relationshipRepo) Remove(ctx context.Context, filter model.RelationshipFilter) (int64, error) {
	query := `DELETE FROM relationships WHERE type = $1`
	args := []interface{}{filter.Type}
	if filter.SubjectID != 0 {
		args = append(args, filter.SubjectID)
		query += ` AND subject_id = $` + itoa(len(args))
	}
	if filter.ObjectID != 0 {
		args = append(args, filter.ObjectID)
		query += ` AND object_id = $` + itoa(len(args))
	}
	if filter.UpdatedBefore != nil {
		args = append(args, *filter.UpdatedBefore)
		query += ` AND updated < $` + itoa(len(args))
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *relationshipRepo) Delete(ctx context.Context, subjectID int64, typ model.RelationshipType, target model.TargetSelector) (int64, error) {
	clause, arg := targetClause(target, "$3")
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM relationships
		WHERE subject_id = $1 AND type = $2 AND `+clause+`
	`, subjectID, typ, arg)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *relationshipRepo) FindExpired(ctx context.Context, subjectID int64, now time.Time) ([]model.Relationship, error) {
	var rels []model.Relationship
	err := r.db.SelectContext(ctx, &rels, `
		SELECT * FROM relationships
		WHERE subject_id = $1 AND type IN ($2, $3) AND until < $4
	`, subjectID, model.RelationshipBlocks, model.RelationshipMutes, now)
	if err != nil {
		return nil, err
	}
	return rels, nil
}
