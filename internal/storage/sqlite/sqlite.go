package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	db *sql.DB
}

// New opens the bookmark database in dataDir
func New(dataDir string) (*DB, error) {
	return Open(filepath.Join(dataDir, "conference.db"))
}

// Open opens the database at path
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &DB{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS bookmarks (
			account TEXT NOT NULL,
			room_jid TEXT NOT NULL,
			nick TEXT,
			password TEXT,
			accept_defaults INTEGER DEFAULT 0,
			autojoin INTEGER DEFAULT 0,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (account, room_jid)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bookmarks_account ON bookmarks(account)`,

		`CREATE TABLE IF NOT EXISTS app_state (
			key TEXT PRIMARY KEY,
			value TEXT
		)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Bookmark is a remembered room membership
type Bookmark struct {
	Account        string
	RoomJID        string
	Nick           string
	Password       string
	AcceptDefaults bool
	AutoJoin       bool
	CreatedAt      time.Time
}

func (d *DB) SaveBookmark(b Bookmark) error {
	_, err := d.db.Exec(`
		INSERT INTO bookmarks (account, room_jid, nick, password, accept_defaults, autojoin, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account, room_jid) DO UPDATE SET
			nick = excluded.nick,
			password = excluded.password,
			accept_defaults = excluded.accept_defaults,
			autojoin = excluded.autojoin
	`, b.Account, b.RoomJID, b.Nick, b.Password, b.AcceptDefaults, b.AutoJoin, time.Now().Unix())
	return err
}

func (d *DB) GetBookmark(account, roomJID string) (*Bookmark, error) {
	row := d.db.QueryRow(`
		SELECT account, room_jid, nick, password, accept_defaults, autojoin, created_at
		FROM bookmarks
		WHERE account = ? AND room_jid = ?
	`, account, roomJID)

	b, err := scanBookmark(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (d *DB) GetBookmarks(account string) ([]Bookmark, error) {
	rows, err := d.db.Query(`
		SELECT account, room_jid, nick, password, accept_defaults, autojoin, created_at
		FROM bookmarks
		WHERE account = ?
		ORDER BY room_jid
	`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookmarks []Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		bookmarks = append(bookmarks, *b)
	}

	return bookmarks, rows.Err()
}

func (d *DB) DeleteBookmark(account, roomJID string) error {
	_, err := d.db.Exec("DELETE FROM bookmarks WHERE account = ? AND room_jid = ?", account, roomJID)
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBookmark(s scanner) (*Bookmark, error) {
	var b Bookmark
	var nick, password sql.NullString
	var created int64

	err := s.Scan(&b.Account, &b.RoomJID, &nick, &password, &b.AcceptDefaults, &b.AutoJoin, &created)
	if err != nil {
		return nil, err
	}

	if nick.Valid {
		b.Nick = nick.String
	}
	if password.Valid {
		b.Password = password.String
	}
	b.CreatedAt = time.Unix(created, 0)
	return &b, nil
}

// App state

func (d *DB) SetState(key, value string) error {
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO app_state (key, value)
		VALUES (?, ?)
	`, key, value)
	return err
}

func (d *DB) GetState(key string) (string, error) {
	var value sql.NullString
	err := d.db.QueryRow("SELECT value FROM app_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value.String, nil
}
