package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

const leadColumns = `id, first_name, last_name, email, phone, company_name, job_title, company_size,
	industry, company_website, linkedin_url, notes, lead_score, pipeline_stage, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (Lead, error) {
	var l Lead
	var phone, jobTitle, companySize, industry, website, linkedin, notes sql.NullString
	var stage, createdAt, updatedAt string
	err := row.Scan(&l.ID, &l.FirstName, &l.LastName, &l.Email, &phone, &l.CompanyName,
		&jobTitle, &companySize, &industry, &website, &linkedin, &notes,
		&l.LeadScore, &stage, &createdAt, &updatedAt)
	if err != nil {
		return Lead{}, err
	}
	l.Phone = stringPtr(phone)
	l.JobTitle = stringPtr(jobTitle)
	l.CompanySize = stringPtr(companySize)
	l.Industry = stringPtr(industry)
	l.CompanyWebsite = stringPtr(website)
	l.LinkedInURL = stringPtr(linkedin)
	l.Notes = stringPtr(notes)
	l.PipelineStage = PipelineStage(stage)
	if l.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Lead{}, err
	}
	if l.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Lead{}, err
	}
	return l, nil
}

// CreateLead inserts l and returns the stored row. ID, timestamps and the
// default stage are assigned by the store.
func (s *Store) CreateLead(l Lead) (Lead, error) {
	now := s.now()
	if l.PipelineStage == "" {
		l.PipelineStage = StageNew
	}
	res, err := s.db.Exec(`
		INSERT INTO leads (first_name, last_name, email, phone, company_name, job_title, company_size,
			industry, company_website, linkedin_url, notes, lead_score, pipeline_stage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.FirstName, l.LastName, l.Email, nullString(l.Phone), l.CompanyName,
		nullString(l.JobTitle), nullString(l.CompanySize), nullString(l.Industry),
		nullString(l.CompanyWebsite), nullString(l.LinkedInURL), nullString(l.Notes),
		l.LeadScore, string(l.PipelineStage), formatTime(now), formatTime(now),
	)
	if isUniqueViolation(err) {
		return Lead{}, ErrDuplicateEmail
	}
	if err != nil {
		return Lead{}, fmt.Errorf("inserting lead: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Lead{}, err
	}
	return s.GetLead(id)
}

func (s *Store) GetLead(id int64) (Lead, error) {
	l, err := scanLead(s.db.QueryRow(`SELECT `+leadColumns+` FROM leads WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, err
	}
	return l, nil
}

// ListLeads returns leads in insertion order, filtered by stage and a
// case-insensitive substring over name, company and email.
func (s *Store) ListLeads(f LeadFilter) ([]Lead, error) {
	var where []string
	var args []any
	if f.Stage != "" {
		where = append(where, "pipeline_stage = ?")
		args = append(args, string(f.Stage))
	}
	if f.Search != "" {
		p := likePattern(f.Search)
		where = append(where, `(first_name LIKE ? ESCAPE '\' OR last_name LIKE ? ESCAPE '\'
			OR company_name LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p, p)
	}

	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY id ASC LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, l)
	}
	return results, rows.Err()
}

// UpdateLead applies the non-nil fields of p and bumps updated_at.
func (s *Store) UpdateLead(id int64, p LeadPatch) (Lead, error) {
	var sets []string
	var args []any
	addStr := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, *v)
		}
	}
	addStr("first_name", p.FirstName)
	addStr("last_name", p.LastName)
	addStr("email", p.Email)
	addStr("phone", p.Phone)
	addStr("company_name", p.CompanyName)
	addStr("job_title", p.JobTitle)
	addStr("company_size", p.CompanySize)
	addStr("industry", p.Industry)
	addStr("company_website", p.CompanyWebsite)
	addStr("linkedin_url", p.LinkedInURL)
	addStr("notes", p.Notes)
	if p.LeadScore != nil {
		sets = append(sets, "lead_score = ?")
		args = append(args, *p.LeadScore)
	}
	if p.PipelineStage != nil {
		if !p.PipelineStage.Valid() {
			return Lead{}, fmt.Errorf("invalid pipeline stage %q", *p.PipelineStage)
		}
		sets = append(sets, "pipeline_stage = ?")
		args = append(args, string(*p.PipelineStage))
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(s.now()), id)

	res, err := s.db.Exec(`UPDATE leads SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if isUniqueViolation(err) {
		return Lead{}, ErrDuplicateEmail
	}
	if err != nil {
		return Lead{}, fmt.Errorf("updating lead %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Lead{}, err
	}
	if n == 0 {
		return Lead{}, ErrNotFound
	}
	return s.GetLead(id)
}

// UpdateLeadScoring writes the outcome of a qualification or scoring pass in a
// single statement. Nil arguments leave the column untouched; updated_at is
// always bumped.
func (s *Store) UpdateLeadScoring(id int64, score *float64, stage *PipelineStage) (Lead, error) {
	var scoreArg, stageArg any
	if score != nil {
		scoreArg = *score
	}
	if stage != nil {
		stageArg = string(*stage)
	}
	res, err := s.db.Exec(`
		UPDATE leads
		SET lead_score = COALESCE(?, lead_score),
			pipeline_stage = COALESCE(?, pipeline_stage),
			updated_at = ?
		WHERE id = ?`,
		scoreArg, stageArg, formatTime(s.now()), id,
	)
	if err != nil {
		return Lead{}, fmt.Errorf("updating lead %d score: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Lead{}, err
	}
	if n == 0 {
		return Lead{}, ErrNotFound
	}
	return s.GetLead(id)
}

// DeleteLead removes a lead along with its interactions and messages.
func (s *Store) DeleteLead(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM interactions WHERE lead_id = ?`, id); err != nil {
		return fmt.Errorf("deleting interactions: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE lead_id = ?`, id); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM leads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting lead: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// PipelineStats counts leads per stage. Every known stage is present in the
// result, with zero when empty.
func (s *Store) PipelineStats() (map[PipelineStage]int, error) {
	stats := make(map[PipelineStage]int, len(PipelineStages))
	for _, st := range PipelineStages {
		stats[st] = 0
	}

	rows, err := s.db.Query(`SELECT pipeline_stage, COUNT(*) FROM leads GROUP BY pipeline_stage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, err
		}
		stats[PipelineStage(stage)] = n
	}
	return stats, rows.Err()
}

// SearchLeads matches q against name, company, email, title and industry.
func (s *Store) SearchLeads(q string, limit int) ([]Lead, error) {
	p := likePattern(q)
	rows, err := s.db.Query(`SELECT `+leadColumns+` FROM leads
		WHERE first_name LIKE ? ESCAPE '\' OR last_name LIKE ? ESCAPE '\'
			OR company_name LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\'
			OR job_title LIKE ? ESCAPE '\' OR industry LIKE ? ESCAPE '\'
		ORDER BY id ASC LIMIT ?`,
		p, p, p, p, p, p, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, l)
	}
	return results, rows.Err()
}
