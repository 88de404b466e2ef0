// Package contacts provides the address book consulted when a call comes
// in, with vCard import/export and CardDAV pull sync.
package contacts

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no contact matches.
var ErrNotFound = errors.New("contact not found")

const contactColumns = "id, name, number, category, created_at, updated_at"

// Contact is one address book entry. Number is the lookup key for
// incoming calls; it is not unique and the first match wins.
type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Number    string    `json:"number"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store manages contact persistence in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (or creates) the contact database at dbPath using the
// named database/sql driver ("sqlite3" or "sqlite").
func NewStore(driver, dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS contacts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			number TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_contacts_number ON contacts(number);
	`)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add creates a contact with a fresh UUIDv7.
func (s *Store) Add(c Contact) (Contact, error) {
	if err := validate(&c); err != nil {
		return Contact{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Contact{}, fmt.Errorf("generate id: %w", err)
	}
	now := time.Now().UTC()
	c.ID = id.String()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err = s.db.Exec(`INSERT INTO contacts (`+contactColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Number, c.Category, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return Contact{}, fmt.Errorf("insert: %w", err)
	}
	s.logger.Debug("contact added", "contact_id", c.ID, "name", c.Name)
	return c, nil
}

// Update replaces name, number and category of an existing contact.
func (s *Store) Update(c Contact) (Contact, error) {
	if err := validate(&c); err != nil {
		return Contact{}, err
	}
	now := time.Now().UTC()
	res, err := s.db.Exec(`UPDATE contacts SET name = ?, number = ?, category = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Number, c.Category, now.Format(time.RFC3339Nano), c.ID)
	if err != nil {
		return Contact{}, fmt.Errorf("update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Contact{}, fmt.Errorf("%w: %s", ErrNotFound, c.ID)
	}
	return s.Get(c.ID)
}

// Delete removes a contact.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Get returns a contact by ID.
func (s *Store) Get(id string) (Contact, error) {
	row := s.db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id)
	return scanContact(row)
}

// FindByNumber returns the first contact, in insertion order, whose
// number equals number exactly.
func (s *Store) FindByNumber(number string) (Contact, error) {
	row := s.db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE number = ? ORDER BY rowid LIMIT 1`, number)
	return scanContact(row)
}

// List returns all contacts in insertion order.
func (s *Store) List() ([]Contact, error) {
	rows, err := s.db.Query(`SELECT ` + contactColumns + ` FROM contacts ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of stored contacts.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM contacts`).Scan(&n)
	return n, err
}

// Merge inserts c, or updates the first existing contact with the same
// number. It reports whether a new row was created. Used by import and
// sync so repeated runs do not duplicate entries.
func (s *Store) Merge(c Contact) (created bool, err error) {
	existing, err := s.FindByNumber(strings.TrimSpace(c.Number))
	switch {
	case errors.Is(err, ErrNotFound):
		_, err = s.Add(c)
		return err == nil, err
	case err != nil:
		return false, err
	}

	if c.Category == "" {
		c.Category = existing.Category
	}
	if existing.Name == c.Name && existing.Category == c.Category {
		return false, nil
	}
	c.ID = existing.ID
	_, err = s.Update(c)
	return false, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(row scanner) (Contact, error) {
	var c Contact
	var created, updated string
	err := row.Scan(&c.ID, &c.Name, &c.Number, &c.Category, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, fmt.Errorf("scan: %w", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return c, nil
}

func validate(c *Contact) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Number = strings.TrimSpace(c.Number)
	c.Category = strings.TrimSpace(c.Category)
	if c.Name == "" {
		return errors.New("contact name is required")
	}
	if c.Number == "" {
		return errors.New("contact number is required")
	}
	return nil
}
