package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/BiroNora/BlackJack-01/pkg/server/internal/db"
)

// StartingTokens is the bankroll a fresh user (or a restarted one) receives.
const StartingTokens = 1000

// Database defines the persistence operations the server needs.
type Database interface {
	// GetUser returns the user with the given primary id.
	GetUser(id string) (*db.User, error)
	// GetUserByClientID returns the user registered under clientID.
	GetUserByClientID(clientID string) (*db.User, error)
	// CreateUser registers a new user under clientID with the given bankroll.
	CreateUser(clientID string, tokens int64) (*db.User, error)
	// AddTokens applies delta to the bankroll, records the transaction and
	// returns the new balance.
	AddTokens(id string, delta int64, txType, description string) (int64, error)
	// SetTokens overwrites the bankroll and records the transaction.
	SetTokens(id string, tokens int64, txType, description string) error
	// Close closes the database connection.
	Close() error
}

// NewDatabase opens the sqlite-backed database at dbPath, creating parent
// directories as needed.
func NewDatabase(dbPath string) (Database, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}
	return db.NewDB(dbPath)
}

// InMemoryDB is a map-backed Database for tests.
type InMemoryDB struct {
	mu      sync.Mutex
	users   map[string]*db.User
	byCID   map[string]string
	nextSeq int
}

// NewInMemoryDB creates an empty in-memory database.
func NewInMemoryDB() *InMemoryDB {
	return &InMemoryDB{
		users: make(map[string]*db.User),
		byCID: make(map[string]string),
	}
}

func (m *InMemoryDB) GetUser(id string) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *InMemoryDB) GetUserByClientID(clientID string) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byCID[clientID]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *InMemoryDB) CreateUser(clientID string, tokens int64) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq++
	if clientID == "" {
		clientID = fmt.Sprintf("client-%d", m.nextSeq)
	}
	if _, exists := m.byCID[clientID]; exists {
		return nil, fmt.Errorf("client id already registered")
	}
	u := &db.User{
		ID:       fmt.Sprintf("user-%d", m.nextSeq),
		ClientID: clientID,
		Tokens:   tokens,
	}
	m.users[u.ID] = u
	m.byCID[clientID] = u.ID
	cp := *u
	return &cp, nil
}

func (m *InMemoryDB) AddTokens(id string, delta int64, txType, description string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, db.ErrNotFound
	}
	u.Tokens += delta
	return u.Tokens, nil
}

func (m *InMemoryDB) SetTokens(id string, tokens int64, txType, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return db.ErrNotFound
	}
	u.Tokens = tokens
	return nil
}

func (m *InMemoryDB) Close() error { return nil }
