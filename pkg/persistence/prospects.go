package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Prospect is one saved contact.
type Prospect struct {
	ID          int64
	SearchID    int64
	ContactName string
	Email       string
	Company     string
	Title       string
	Status      string // high | verified | unverified
	Source      string
}

// CreateProspectSearch records the start of a contact-finding run.
func (s *Store) CreateProspectSearch(sessionID, request string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO prospect_searches (session_id, request) VALUES (?, ?)`,
		sessionID, request)
	if err != nil {
		return 0, fmt.Errorf("create prospect search: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create prospect search: %w", err)
	}
	return id, nil
}

// FinishProspectSearch marks a search done or failed.
func (s *Store) FinishProspectSearch(searchID int64, status string) error {
	_, err := s.db.Exec(
		`UPDATE prospect_searches SET status = ?, finished_at = datetime('now') WHERE id = ?`,
		status, searchID)
	if err != nil {
		return fmt.Errorf("finish prospect search %d: %w", searchID, err)
	}
	return nil
}

// AddProspect inserts a contact unless a duplicate already exists within the
// search. The duplicate key is lower(email, company); rows without an email
// fall back to lower(contact_name, company), which can collide on common
// names. Returns the new row id, or 0 for a duplicate.
func (s *Store) AddProspect(p *Prospect) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("add prospect: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int64
	if strings.TrimSpace(p.Email) != "" {
		err = tx.QueryRow(
			`SELECT id FROM prospects
			 WHERE search_id = ? AND email != '' AND lower(email) = lower(?) AND lower(company) = lower(?)`,
			p.SearchID, p.Email, p.Company).Scan(&existing)
	} else {
		err = tx.QueryRow(
			`SELECT id FROM prospects
			 WHERE search_id = ? AND lower(contact_name) = lower(?) AND lower(company) = lower(?)`,
			p.SearchID, p.ContactName, p.Company).Scan(&existing)
	}
	switch {
	case err == nil:
		return 0, nil // duplicate
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("probe duplicate prospect: %w", err)
	}

	res, err := tx.Exec(
		`INSERT INTO prospects (search_id, contact_name, email, company, title, status, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.SearchID, p.ContactName, p.Email, p.Company, p.Title, p.Status, p.Source)
	if err != nil {
		return 0, fmt.Errorf("insert prospect: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert prospect: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prospect: %w", err)
	}
	return id, nil
}

// GetProspects returns all contacts of a search, oldest first.
func (s *Store) GetProspects(searchID int64) ([]Prospect, error) {
	rows, err := s.db.Query(
		`SELECT id, search_id, contact_name, email, company, title, status, source
		 FROM prospects WHERE search_id = ? ORDER BY id`, searchID)
	if err != nil {
		return nil, fmt.Errorf("get prospects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Prospect
	for rows.Next() {
		var p Prospect
		if err := rows.Scan(&p.ID, &p.SearchID, &p.ContactName, &p.Email,
			&p.Company, &p.Title, &p.Status, &p.Source); err != nil {
			return nil, fmt.Errorf("scan prospect: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
