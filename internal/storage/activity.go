package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// --- Interactions ---

func scanInteraction(row rowScanner) (Interaction, error) {
	var i Interaction
	var typ, createdAt string
	var subject sql.NullString
	if err := row.Scan(&i.ID, &i.LeadID, &typ, &subject, &i.Content, &createdAt); err != nil {
		return Interaction{}, err
	}
	i.InteractionType = InteractionType(typ)
	i.Subject = stringPtr(subject)
	t, err := parseTime("created_at", createdAt)
	if err != nil {
		return Interaction{}, err
	}
	i.CreatedAt = t
	return i, nil
}

// AddInteraction logs an interaction against an existing lead.
func (s *Store) AddInteraction(i Interaction) (Interaction, error) {
	if err := s.leadExists(i.LeadID); err != nil {
		return Interaction{}, err
	}
	now := s.now()
	tx, err := s.db.Begin()
	if err != nil {
		return Interaction{}, fmt.Errorf("beginning interaction transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO interactions (lead_id, interaction_type, subject, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		i.LeadID, string(i.InteractionType), nullString(i.Subject), i.Content, formatTime(now),
	)
	if err != nil {
		return Interaction{}, fmt.Errorf("inserting interaction: %w", err)
	}
	if _, err := tx.Exec(`UPDATE leads SET updated_at = ? WHERE id = ?`, formatTime(now), i.LeadID); err != nil {
		return Interaction{}, fmt.Errorf("touching lead: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Interaction{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Interaction{}, err
	}
	i.ID = id
	i.CreatedAt = now.Truncate(time.Second)
	return i, nil
}

// ListInteractions returns a lead's interactions, newest first.
func (s *Store) ListInteractions(leadID int64) ([]Interaction, error) {
	rows, err := s.db.Query(`
		SELECT id, lead_id, interaction_type, subject, content, created_at
		FROM interactions WHERE lead_id = ? ORDER BY created_at DESC, id DESC`, leadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Interaction
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, i)
	}
	return results, rows.Err()
}

// SearchInteractions matches q against interaction subject and content.
func (s *Store) SearchInteractions(q string, limit int) ([]Interaction, error) {
	p := likePattern(q)
	rows, err := s.db.Query(`
		SELECT id, lead_id, interaction_type, subject, content, created_at
		FROM interactions
		WHERE subject LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\'
		ORDER BY id ASC LIMIT ?`, p, p, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Interaction
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, i)
	}
	return results, rows.Err()
}

// --- Messages ---

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	var subject, raw, sentAt sql.NullString
	var createdAt string
	if err := row.Scan(&m.ID, &m.LeadID, &m.MessageType, &subject, &m.Content, &m.PromptUsed, &raw, &createdAt, &sentAt); err != nil {
		return Message{}, err
	}
	m.Subject = stringPtr(subject)
	m.RawCompletion = stringPtr(raw)
	t, err := parseTime("created_at", createdAt)
	if err != nil {
		return Message{}, err
	}
	m.CreatedAt = t
	if sentAt.Valid {
		st, err := parseTime("sent_at", sentAt.String)
		if err != nil {
			return Message{}, err
		}
		m.SentAt = &st
	}
	return m, nil
}

const messageColumns = `id, lead_id, message_type, subject, content, prompt_used, raw_completion, created_at, sent_at`

// AddMessage stores an outreach message for an existing lead.
func (s *Store) AddMessage(m Message) (Message, error) {
	if err := s.leadExists(m.LeadID); err != nil {
		return Message{}, err
	}
	now := s.now()
	var sentAt sql.NullString
	if m.SentAt != nil {
		sentAt = sql.NullString{String: formatTime(*m.SentAt), Valid: true}
	}
	tx, err := s.db.Begin()
	if err != nil {
		return Message{}, fmt.Errorf("beginning message transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO messages (lead_id, message_type, subject, content, prompt_used, raw_completion, created_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.LeadID, m.MessageType, nullString(m.Subject), m.Content, m.PromptUsed,
		nullString(m.RawCompletion), formatTime(now), sentAt,
	)
	if err != nil {
		return Message{}, fmt.Errorf("inserting message: %w", err)
	}
	if _, err := tx.Exec(`UPDATE leads SET updated_at = ? WHERE id = ?`, formatTime(now), m.LeadID); err != nil {
		return Message{}, fmt.Errorf("touching lead: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Message{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, err
	}
	return s.getMessage(id)
}

func (s *Store) getMessage(id int64) (Message, error) {
	m, err := scanMessage(s.db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Message{}, ErrNotFound
	}
	return m, err
}

// ListMessages returns a lead's messages, newest first.
func (s *Store) ListMessages(leadID int64) ([]Message, error) {
	rows, err := s.db.Query(`SELECT `+messageColumns+` FROM messages
		WHERE lead_id = ? ORDER BY created_at DESC, id DESC`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// SearchMessages matches q against message subject and content.
func (s *Store) SearchMessages(q string, limit int) ([]Message, error) {
	p := likePattern(q)
	rows, err := s.db.Query(`SELECT `+messageColumns+` FROM messages
		WHERE subject LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\'
		ORDER BY id ASC LIMIT ?`, p, p, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func (s *Store) leadExists(id int64) error {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM leads WHERE id = ?`, id).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("lead %d: %w", id, ErrNotFound)
	}
	return nil
}
