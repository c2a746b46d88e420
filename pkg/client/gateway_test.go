package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vctt94/bisonbotkit/logging"
)

func testLogger(t *testing.T) *logging.LogBackend {
	backend, err := logging.NewLogBackend(logging.LogConfig{DebugLevel: "off"})
	require.NoError(t, err)
	return backend
}

func newTestGateway(t *testing.T, handler http.Handler) (*Gateway, *httptest.Server) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	gw, err := NewGateway(srv.URL, testLogger(t).Logger("TEST"))
	require.NoError(t, err)
	return gw, srv
}

func TestCallSuccess(t *testing.T) {
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/hit", r.URL.Path)
		w.Write([]byte(`{"status":"success","current_tokens":500,"game_state":{"deckLen":70}}`))
	}))

	raw, err := gw.Hit(context.Background())
	require.NoError(t, err)

	tokens, rs, ok := ExtractSnapshot(raw)
	require.True(t, ok)
	assert.Equal(t, int64(500), tokens)
	assert.Equal(t, 70, rs.DeckLen)
}

func TestCallExpectedRejection(t *testing.T) {
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"error","error":"No more split hands.","game_state_hint":"NO_MORE_SPLIT_HANDS"}`))
	}))

	_, err := gw.NextSplitHand(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))

	var cerr *CallError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, ExpectedRejection, cerr.Kind)
	assert.Equal(t, "No more split hands.", cerr.Message)
	assert.False(t, cerr.IsFatal())
}

func TestCall4xxWithoutErrorKeyIsFault(t *testing.T) {
	// A 4xx whose body lacks the structured "error" key is a server fault,
	// not game flow.
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"error","message":"deck exhausted"}`))
	}))

	_, err := gw.Hit(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRejected))

	var cerr *CallError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, ServerFault, cerr.Kind)
	assert.True(t, cerr.IsFatal())
}

func TestCallServerFault(t *testing.T) {
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"status":"error","message":"CRITICAL SERVER ERROR"}`))
	}))

	_, err := gw.Stand(context.Background())
	require.Error(t, err)

	var cerr *CallError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, ServerFault, cerr.Kind)
	assert.Equal(t, http.StatusInternalServerError, cerr.Status)
}

func TestCallTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // refuse all connections

	gw, err := NewGateway(srv.URL, testLogger(t).Logger("TEST"))
	require.NoError(t, err)

	_, err = gw.Shuffle(context.Background())
	require.Error(t, err)

	var cerr *CallError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, TransportFailure, cerr.Kind)
	assert.True(t, cerr.IsFatal())
}

func TestCookieSessionStickiness(t *testing.T) {
	var sawCookie bool
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/initialize_session":
			http.SetCookie(w, &http.Cookie{Name: "bj_session", Value: "abc", Path: "/"})
			w.Write([]byte(`{"user_id":"u1","client_id":"c1","tokens":1000}`))
		default:
			c, err := r.Cookie("bj_session")
			if err == nil && c.Value == "abc" {
				sawCookie = true
			}
			w.Write([]byte(`{"current_tokens":1000,"game_state":{"deckLen":0}}`))
		}
	}))

	info, err := gw.InitializeSession(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "u1", info.UserID)
	assert.Equal(t, int64(1000), info.Tokens)

	_, err = gw.Shuffle(context.Background())
	require.NoError(t, err)
	assert.True(t, sawCookie, "session cookie must accompany subsequent calls")
}

func TestInitTokensAndDeckLen(t *testing.T) {
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/get_init_tokens_from_db":
			w.Write([]byte(`{"user_tokens":1000}`))
		case "/api/get_deck_len":
			w.Write([]byte(`{"deckLen":84}`))
		}
	}))

	tokens, err := gw.InitTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), tokens)

	n, err := gw.DeckLen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 84, n)
}

func TestInitTokensMissingFieldIsValidationFailure(t *testing.T) {
	gw, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"ok"}`))
	}))

	_, err := gw.InitTokens(context.Background())
	require.Error(t, err)

	var cerr *CallError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, ValidationFailure, cerr.Kind)
}
