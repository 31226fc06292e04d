package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Store mirrors audit messages into a SQL "messages" table for log shipping
// and offline review. The ledger trail stays authoritative.
type Store struct {
	db     *sql.DB
	driver string
}

// Message represents an audit message for database persistence
type Message struct {
	Facility  int            `json:"facility"`
	Severity  int            `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
	Hostname  string         `json:"hostname"`
	Appname   string         `json:"appname"`
	Procid    string         `json:"procid"`
	Msgid     string         `json:"msgid"`
	Sdata     map[string]any `json:"sdata"`
	Message   string         `json:"message"`
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	facility INTEGER NOT NULL,
	severity INTEGER NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	hostname TEXT,
	appname TEXT,
	procid TEXT,
	msgid TEXT,
	sdata TEXT,
	message TEXT NOT NULL
)`

// OpenStore connects to the audit database. driver is "postgres" or
// "sqlite3". An empty url disables the mirror and returns nil, nil.
func OpenStore(driver, url string) (*Store, error) {
	if url == "" {
		return nil, nil
	}

	switch driver {
	case "", "postgres":
		driver = "postgres"
	case "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported audit database driver %q", driver)
	}

	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, err
	}

	// postgres schema is managed by migrations
	if driver == "sqlite3" {
		if _, err := db.Exec(sqliteSchema); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Store{db: db, driver: driver}, nil
}

// NewStoreWithDB creates a store with an existing database connection
// Useful for testing with sqlmock
func NewStoreWithDB(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save persists an audit event to the database
func (s *Store) Save(event Event) error {
	if s == nil || s.db == nil {
		return nil
	}

	hostname, _ := os.Hostname()

	sdataJSON, err := json.Marshal(event.StructuredData())
	if err != nil {
		return err
	}

	_, err = s.db.Exec(s.insertSQL(),
		event.Facility(),
		int(event.Severity()),
		time.Now().UTC(),
		hostname,
		"phivault",
		fmt.Sprint(os.Getpid()),
		event.MessageID(),
		string(sdataJSON),
		event.Message(),
	)

	return err
}

func (s *Store) insertSQL() string {
	if s.driver == "sqlite3" {
		return `INSERT INTO messages (facility, severity, timestamp, hostname, appname, procid, msgid, sdata, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	}
	return `INSERT INTO messages (facility, severity, timestamp, hostname, appname, procid, msgid, sdata, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
}

// Messages returns the most recent messages for a message id, newest first.
func (s *Store) Messages(msgid string, limit int) ([]Message, error) {
	query := `SELECT facility, severity, timestamp, hostname, appname, procid, msgid, sdata, message
		FROM messages WHERE msgid = $1 ORDER BY timestamp DESC LIMIT $2`
	if s.driver == "sqlite3" {
		query = `SELECT facility, severity, timestamp, hostname, appname, procid, msgid, sdata, message
		FROM messages WHERE msgid = ? ORDER BY timestamp DESC LIMIT ?`
	}

	rows, err := s.db.Query(query, msgid, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m     Message
			sdata string
		)
		if err := rows.Scan(&m.Facility, &m.Severity, &m.Timestamp, &m.Hostname, &m.Appname, &m.Procid, &m.Msgid, &sdata, &m.Message); err != nil {
			return nil, err
		}
		if sdata != "" {
			if err := json.Unmarshal([]byte(sdata), &m.Sdata); err != nil {
				return nil, err
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
