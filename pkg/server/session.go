package server

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "bj_session"

// Session binds a browser session to a user and their in-progress game.
// Game access is serialized through the session mutex.
type Session struct {
	Token  string
	UserID string

	mu   sync.Mutex
	game *Game
}

// WithGame runs fn with exclusive access to the session's game. A session
// without an initialized game passes nil.
func (s *Session) WithGame(fn func(g *Game)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.game)
}

// SetGame replaces the session's game.
func (s *Session) SetGame(g *Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.game = g
}

// HasGame reports whether a game has been initialized for the session.
func (s *Session) HasGame() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game != nil
}

// SessionStore keeps active sessions in memory, keyed by token.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// FromRequest resolves the session named by the request's cookie.
func (st *SessionStore) FromRequest(r *http.Request) (*Session, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	sess, ok := st.sessions[c.Value]
	return sess, ok
}

// Create opens a new session for userID and sets its cookie on the response.
func (st *SessionStore) Create(w http.ResponseWriter, userID string) *Session {
	sess := &Session{
		Token:  uuid.NewString(),
		UserID: userID,
	}
	st.mu.Lock()
	st.sessions[sess.Token] = sess
	st.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

// Drop removes a session from the store.
func (st *SessionStore) Drop(token string) {
	st.mu.Lock()
	delete(st.sessions, token)
	st.mu.Unlock()
}
