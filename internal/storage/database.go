package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

// DB is the on-device store: a small key/value table, local accounts and
// community shares.
type DB struct {
	*sql.DB
}

type Account struct {
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Share struct {
	ID          string
	AuthorName  string
	AuthorEmail string
	FilePath    string
	ThumbPath   string
	ContentType string
	Width       int
	Height      int
	Source      string
	CreatedAt   time.Time
}

// InitDB opens (creating if needed) the sqlite database at dbPath.
func InitDB(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// single writer on device
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		email TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS shares (
		id TEXT PRIMARY KEY,
		author_name TEXT NOT NULL,
		author_email TEXT NOT NULL,
		file_path TEXT NOT NULL,
		thumb_path TEXT,
		content_type TEXT NOT NULL,
		width INTEGER,
		height INTEGER,
		source TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_shares_created ON shares(created_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// GetValue returns the value stored under key, or ErrNotFound.
func (db *DB) GetValue(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (db *DB) PutValue(key, value string) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().UTC())
	return err
}

func (db *DB) DeleteValue(key string) error {
	_, err := db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (db *DB) SaveAccount(account *Account) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO accounts (email, password_hash, created_at) VALUES (?, ?, ?)`,
		account.Email, account.PasswordHash, account.CreatedAt)
	return err
}

func (db *DB) GetAccount(email string) (*Account, error) {
	account := &Account{}
	err := db.QueryRow(`SELECT email, password_hash, created_at FROM accounts WHERE email = ?`, email).
		Scan(&account.Email, &account.PasswordHash, &account.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (db *DB) SaveShare(share *Share) error {
	query := `INSERT INTO shares (id, author_name, author_email, file_path, thumb_path, content_type, width, height, source, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.Exec(query, share.ID, share.AuthorName, share.AuthorEmail, share.FilePath, share.ThumbPath,
		share.ContentType, share.Width, share.Height, share.Source, share.CreatedAt)
	return err
}

func (db *DB) GetShare(id string) (*Share, error) {
	row := db.QueryRow(`SELECT id, author_name, author_email, file_path, thumb_path, content_type, width, height, source, created_at
	                    FROM shares WHERE id = ?`, id)
	share, err := scanShare(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return share, err
}

// ListShares returns the newest shares first.
func (db *DB) ListShares(limit int) ([]*Share, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT id, author_name, author_email, file_path, thumb_path, content_type, width, height, source, created_at
	                       FROM shares ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shares []*Share
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning share: %w", err)
		}
		shares = append(shares, share)
	}
	return shares, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanShare(row scanner) (*Share, error) {
	share := &Share{}
	var thumb sql.NullString
	err := row.Scan(&share.ID, &share.AuthorName, &share.AuthorEmail, &share.FilePath, &thumb,
		&share.ContentType, &share.Width, &share.Height, &share.Source, &share.CreatedAt)
	if err != nil {
		return nil, err
	}
	share.ThumbPath = thumb.String
	return share, nil
}
