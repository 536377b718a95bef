package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const evaluationColumns = `id, run_id, test_name, prompt_template, test_input, expected_output,
	actual_output, score, passed, execution_time_ms, created_at`

func scanEvaluation(row rowScanner) (Evaluation, error) {
	var e Evaluation
	var expected sql.NullString
	var score sql.NullFloat64
	var passed int
	var createdAt string
	if err := row.Scan(&e.ID, &e.RunID, &e.TestName, &e.PromptTemplate, &e.TestInput, &expected,
		&e.ActualOutput, &score, &passed, &e.ExecutionTimeMS, &createdAt); err != nil {
		return Evaluation{}, err
	}
	e.ExpectedOutput = stringPtr(expected)
	if score.Valid {
		v := score.Float64
		e.Score = &v
	}
	e.Passed = passed != 0
	t, err := parseTime("created_at", createdAt)
	if err != nil {
		return Evaluation{}, err
	}
	e.CreatedAt = t
	return e, nil
}

// SaveEvaluations appends a batch of evaluation records in one transaction
// and returns them with ids and timestamps filled in.
func (s *Store) SaveEvaluations(evals []Evaluation) ([]Evaluation, error) {
	if len(evals) == 0 {
		return nil, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning evaluation transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO evaluations (run_id, test_name, prompt_template, test_input, expected_output,
			actual_output, score, passed, execution_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	now := s.now()
	out := make([]Evaluation, len(evals))
	for i, e := range evals {
		var score sql.NullFloat64
		if e.Score != nil {
			score = sql.NullFloat64{Float64: *e.Score, Valid: true}
		}
		created := e.CreatedAt
		if created.IsZero() {
			created = now
		}
		res, err := stmt.Exec(e.RunID, e.TestName, e.PromptTemplate, e.TestInput, nullString(e.ExpectedOutput),
			e.ActualOutput, score, boolInt(e.Passed), e.ExecutionTimeMS, formatTime(created))
		if err != nil {
			return nil, fmt.Errorf("inserting evaluation %q: %w", e.TestName, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		e.ID = id
		e.CreatedAt = created.UTC().Truncate(time.Second)
		out[i] = e
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing evaluations: %w", err)
	}
	return out, nil
}

// ListEvaluations returns evaluations newest first, optionally filtered by a
// case-insensitive substring of the test name.
func (s *Store) ListEvaluations(testName string, offset, limit int) ([]Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations`
	var args []any
	if testName != "" {
		query += ` WHERE test_name LIKE ? ESCAPE '\'`
		args = append(args, likePattern(testName))
	}
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// EvaluationSummary aggregates all evaluations, or only the newest limit
// records when limit > 0. Averages are nil when there is nothing to average.
func (s *Store) EvaluationSummary(limit int) (EvaluationSummary, error) {
	source := `evaluations`
	var args []any
	if limit > 0 {
		source = `(SELECT * FROM evaluations ORDER BY created_at DESC, id DESC LIMIT ?)`
		args = append(args, limit)
	}

	var sum EvaluationSummary
	var passed sql.NullInt64
	var avgScore, avgTime sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT COUNT(*), SUM(passed), AVG(score), AVG(execution_time_ms) FROM `+source, args...,
	).Scan(&sum.TotalTests, &passed, &avgScore, &avgTime)
	if err != nil {
		return EvaluationSummary{}, err
	}
	if sum.TotalTests == 0 {
		return EvaluationSummary{}, nil
	}
	sum.PassedTests = int(passed.Int64)
	sum.FailedTests = sum.TotalTests - sum.PassedTests
	if avgScore.Valid {
		v := avgScore.Float64
		sum.AverageScore = &v
	}
	if avgTime.Valid {
		v := avgTime.Float64
		sum.AverageExecutionTimeMS = &v
	}
	return sum, nil
}

func (s *Store) DeleteEvaluation(id int64) error {
	res, err := s.db.Exec(`DELETE FROM evaluations WHERE id = ?`, id)
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
