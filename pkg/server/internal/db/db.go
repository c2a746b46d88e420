package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// User is one bankroll row.
type User struct {
	ID       string
	ClientID string
	Tokens   int64
}

// DB wraps the sqlite connection.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the sqlite database at dbPath.
func NewDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			client_id TEXT UNIQUE NOT NULL,
			tokens INTEGER NOT NULL DEFAULT 1000,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_activity TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			type TEXT NOT NULL,
			description TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)
	`)
	return err
}

// GetUser returns the user with the given primary id.
func (db *DB) GetUser(id string) (*User, error) {
	u := &User{}
	err := db.QueryRow("SELECT id, client_id, tokens FROM users WHERE id = ?", id).
		Scan(&u.ID, &u.ClientID, &u.Tokens)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByClientID returns the user registered under clientID.
func (db *DB) GetUserByClientID(clientID string) (*User, error) {
	u := &User{}
	err := db.QueryRow("SELECT id, client_id, tokens FROM users WHERE client_id = ?", clientID).
		Scan(&u.ID, &u.ClientID, &u.Tokens)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by client id: %w", err)
	}
	return u, nil
}

// CreateUser registers a new user under clientID with the starting bankroll.
// An empty clientID gets a generated one.
func (db *DB) CreateUser(clientID string, tokens int64) (*User, error) {
	if clientID == "" {
		clientID = uuid.NewString()
	}
	u := &User{ID: uuid.NewString(), ClientID: clientID, Tokens: tokens}
	_, err := db.Exec("INSERT INTO users (id, client_id, tokens) VALUES (?, ?, ?)",
		u.ID, u.ClientID, u.Tokens)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// AddTokens applies delta to the user's bankroll and records the transaction.
// It returns the new balance.
func (db *DB) AddTokens(id string, delta int64, txType, description string) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec("UPDATE users SET tokens = tokens + ?, last_activity = CURRENT_TIMESTAMP WHERE id = ?",
		delta, id)
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, ErrNotFound
	}

	_, err = tx.Exec("INSERT INTO transactions (user_id, amount, type, description) VALUES (?, ?, ?, ?)",
		id, delta, txType, description)
	if err != nil {
		return 0, err
	}

	var tokens int64
	if err := tx.QueryRow("SELECT tokens FROM users WHERE id = ?", id).Scan(&tokens); err != nil {
		return 0, err
	}
	return tokens, tx.Commit()
}

// SetTokens overwrites the user's bankroll and records the transaction.
func (db *DB) SetTokens(id string, tokens int64, txType, description string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec("UPDATE users SET tokens = ?, last_activity = CURRENT_TIMESTAMP WHERE id = ?",
		tokens, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec("INSERT INTO transactions (user_id, amount, type, description) VALUES (?, ?, ?, ?)",
		id, tokens, txType, description)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
