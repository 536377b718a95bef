package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

const criterionColumns = `id, name, description, weight, criteria_rules, is_active, created_at, updated_at`

func scanCriterion(row rowScanner) (ScoringCriterion, error) {
	var c ScoringCriterion
	var desc sql.NullString
	var active int
	var createdAt, updatedAt string
	if err := row.Scan(&c.ID, &c.Name, &desc, &c.Weight, &c.Rules, &active, &createdAt, &updatedAt); err != nil {
		return ScoringCriterion{}, err
	}
	c.Description = stringPtr(desc)
	c.IsActive = active != 0
	var err error
	if c.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return ScoringCriterion{}, err
	}
	if c.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return ScoringCriterion{}, err
	}
	return c, nil
}

// CreateCriterion stores a new, active scoring criterion.
func (s *Store) CreateCriterion(c ScoringCriterion) (ScoringCriterion, error) {
	if c.Weight <= 0 {
		return ScoringCriterion{}, fmt.Errorf("criterion weight must be positive, got %v", c.Weight)
	}
	now := formatTime(s.now())
	res, err := s.db.Exec(`
		INSERT INTO scoring_criteria (name, description, weight, criteria_rules, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)`,
		c.Name, nullString(c.Description), c.Weight, c.Rules, now, now,
	)
	if err != nil {
		return ScoringCriterion{}, fmt.Errorf("inserting criterion: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ScoringCriterion{}, err
	}
	return s.GetCriterion(id)
}

func (s *Store) GetCriterion(id int64) (ScoringCriterion, error) {
	c, err := scanCriterion(s.db.QueryRow(`SELECT `+criterionColumns+` FROM scoring_criteria WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return ScoringCriterion{}, ErrNotFound
	}
	return c, err
}

// CriterionByName returns the first criterion with the given name, active or not.
func (s *Store) CriterionByName(name string) (ScoringCriterion, error) {
	c, err := scanCriterion(s.db.QueryRow(`SELECT `+criterionColumns+` FROM scoring_criteria
		WHERE name = ? ORDER BY id ASC LIMIT 1`, name))
	if err == sql.ErrNoRows {
		return ScoringCriterion{}, ErrNotFound
	}
	return c, err
}

// ListCriteria pages through criteria in id order.
func (s *Store) ListCriteria(activeOnly bool, offset, limit int) ([]ScoringCriterion, error) {
	query := `SELECT ` + criterionColumns + ` FROM scoring_criteria`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY id ASC LIMIT ? OFFSET ?`
	return s.queryCriteria(query, limit, offset)
}

// ActiveCriteria returns the active criteria, restricted to ids when non-empty.
func (s *Store) ActiveCriteria(ids []int64) ([]ScoringCriterion, error) {
	query := `SELECT ` + criterionColumns + ` FROM scoring_criteria WHERE is_active = 1`
	args := make([]any, 0, len(ids))
	if len(ids) > 0 {
		query += ` AND id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY id ASC`
	return s.queryCriteria(query, args...)
}

func (s *Store) queryCriteria(query string, args ...any) ([]ScoringCriterion, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ScoringCriterion
	for rows.Next() {
		c, err := scanCriterion(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// ReplaceCriterion overwrites the editable fields of a criterion.
func (s *Store) ReplaceCriterion(id int64, c ScoringCriterion) (ScoringCriterion, error) {
	if c.Weight <= 0 {
		return ScoringCriterion{}, fmt.Errorf("criterion weight must be positive, got %v", c.Weight)
	}
	res, err := s.db.Exec(`
		UPDATE scoring_criteria SET name = ?, description = ?, weight = ?, criteria_rules = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, nullString(c.Description), c.Weight, c.Rules, formatTime(s.now()), id,
	)
	if err != nil {
		return ScoringCriterion{}, fmt.Errorf("updating criterion %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ScoringCriterion{}, err
	}
	if n == 0 {
		return ScoringCriterion{}, ErrNotFound
	}
	return s.GetCriterion(id)
}

// DeactivateCriterion soft-deletes a criterion. Rows are never removed.
func (s *Store) DeactivateCriterion(id int64) error {
	res, err := s.db.Exec(`UPDATE scoring_criteria SET is_active = 0, updated_at = ? WHERE id = ?`,
		formatTime(s.now()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
