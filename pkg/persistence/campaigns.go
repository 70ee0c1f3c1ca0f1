package persistence

import (
	"database/sql"
	"errors"
	"fmt"
)

// Campaign is one finalized mail-merge batch.
type Campaign struct {
	ID       int64
	Name     string
	CSVPath  string
	SheetURL string
	GMassID  string
	Status   string // draft | uploaded | sending | sent
}

// Recipient is one row of a campaign.
type Recipient struct {
	ID          int64
	CampaignID  int64
	ContactName string
	Email       string
	Company     string
	Title       string
	Language    string
	Status      string // pending | sent | opened | replied | bounced
	Stage       int
}

// eventStatus maps delivery events onto recipient statuses. Unknown events
// are logged but leave the status unchanged.
var eventStatus = map[string]string{
	"sent":   "sent",
	"open":   "opened",
	"reply":  "replied",
	"bounce": "bounced",
}

// CreateCampaign inserts a campaign in draft state.
func (s *Store) CreateCampaign(name, csvPath string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO campaigns (name, csv_path) VALUES (?, ?)`, name, csvPath)
	if err != nil {
		return 0, fmt.Errorf("create campaign %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create campaign %q: %w", name, err)
	}
	return id, nil
}

// GetCampaign looks a campaign up by name.
func (s *Store) GetCampaign(name string) (*Campaign, error) {
	var c Campaign
	err := s.db.QueryRow(
		`SELECT id, name, csv_path, sheet_url, gmass_id, status FROM campaigns WHERE name = ?`,
		name).Scan(&c.ID, &c.Name, &c.CSVPath, &c.SheetURL, &c.GMassID, &c.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign %q: %w", name, err)
	}
	return &c, nil
}

// UpdateCampaign sets the mutable fields of a campaign. Empty strings leave
// the stored value in place.
func (s *Store) UpdateCampaign(id int64, sheetURL, gmassID, status string) error {
	_, err := s.db.Exec(
		`UPDATE campaigns SET
			sheet_url = CASE WHEN ? != '' THEN ? ELSE sheet_url END,
			gmass_id  = CASE WHEN ? != '' THEN ? ELSE gmass_id END,
			status    = CASE WHEN ? != '' THEN ? ELSE status END
		 WHERE id = ?`,
		sheetURL, sheetURL, gmassID, gmassID, status, status, id)
	if err != nil {
		return fmt.Errorf("update campaign %d: %w", id, err)
	}
	return nil
}

// AddRecipient attaches a contact to a campaign.
func (s *Store) AddRecipient(r *Recipient) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO recipients (campaign_id, contact_name, email, company, title, language)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.CampaignID, r.ContactName, r.Email, r.Company, r.Title, r.Language)
	if err != nil {
		return 0, fmt.Errorf("add recipient: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add recipient: %w", err)
	}
	return id, nil
}

// GetRecipients returns a campaign's recipients, oldest first.
func (s *Store) GetRecipients(campaignID int64) ([]Recipient, error) {
	rows, err := s.db.Query(
		`SELECT id, campaign_id, contact_name, email, company, title, language, status, stage
		 FROM recipients WHERE campaign_id = ? ORDER BY id`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("get recipients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Recipient
	for rows.Next() {
		var r Recipient
		if err := rows.Scan(&r.ID, &r.CampaignID, &r.ContactName, &r.Email,
			&r.Company, &r.Title, &r.Language, &r.Status, &r.Stage); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LogEvent records a delivery event and advances the recipient's status.
func (s *Store) LogEvent(recipientID int64, event, detail string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT INTO events (recipient_id, event, detail) VALUES (?, ?, ?)`,
		recipientID, event, detail); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if status, ok := eventStatus[event]; ok {
		stmt := `UPDATE recipients SET status = ? WHERE id = ?`
		args := []any{status, recipientID}
		if event == "sent" {
			stmt = `UPDATE recipients SET status = ?, stage = stage + 1, last_sent_at = datetime('now') WHERE id = ?`
		}
		if _, err := tx.Exec(stmt, args...); err != nil {
			return fmt.Errorf("update recipient status: %w", err)
		}
	} else {
		s.logger.Warn("unknown delivery event %q for recipient %d", event, recipientID)
	}
	return tx.Commit()
}

// RecipientsNeedingFollowup returns sent recipients at the given stage whose
// last send is at least daysSince days old and who have not replied or
// bounced.
func (s *Store) RecipientsNeedingFollowup(stage, daysSince int) ([]Recipient, error) {
	rows, err := s.db.Query(
		`SELECT id, campaign_id, contact_name, email, company, title, language, status, stage
		 FROM recipients
		 WHERE stage = ? AND status IN ('sent', 'opened')
		   AND last_sent_at <= datetime('now', ?)
		 ORDER BY id`,
		stage, fmt.Sprintf("-%d days", daysSince))
	if err != nil {
		return nil, fmt.Errorf("followup query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Recipient
	for rows.Next() {
		var r Recipient
		if err := rows.Scan(&r.ID, &r.CampaignID, &r.ContactName, &r.Email,
			&r.Company, &r.Title, &r.Language, &r.Status, &r.Stage); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
