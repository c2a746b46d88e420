package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/BiroNora/BlackJack-01/pkg/blackjack"
	"github.com/BiroNora/BlackJack-01/pkg/server/internal/db"
)

// MinimumBet is the smallest stake the server accepts.
const MinimumBet = 1

// actionEnvelope is the uniform success response of every game action.
type actionEnvelope struct {
	Status        string               `json:"status"`
	Message       string               `json:"message,omitempty"`
	CurrentTokens int64                `json:"current_tokens"`
	GameState     blackjack.RoundState `json:"game_state"`
	Hint          string               `json:"game_state_hint,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeReject reports a rule-level refusal. The "error" key is what clients
// key expected rejections on.
func writeReject(w http.ResponseWriter, code int, msg, hint string) {
	writeJSON(w, code, map[string]string{
		"status":          "error",
		"error":           msg,
		"game_state_hint": hint,
	})
}

// writeFault reports a server-side failure. No "error" key: clients must
// treat these as faults, not game flow.
func writeFault(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{
		"status":          "error",
		"message":         msg,
		"game_state_hint": "SERVER_ERROR_GENERIC",
	})
}

func (s *Server) writeState(w http.ResponseWriter, tokens int64, g *Game, hint string) {
	writeJSON(w, http.StatusOK, actionEnvelope{
		Status:        "success",
		CurrentTokens: tokens,
		GameState:     g.State(),
		Hint:          hint,
	})
}

// requireUser resolves the session user, rejecting requests without a valid
// session.
func (s *Server) requireUser(h func(http.ResponseWriter, *http.Request, *Session, *db.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.sessions.FromRequest(r)
		if !ok {
			writeReject(w, http.StatusUnauthorized, "ERROR: Invalid user session.", "INVALID_USER_SESSION")
			return
		}
		user, err := s.db.GetUser(sess.UserID)
		if err != nil {
			s.sessions.Drop(sess.Token)
			writeReject(w, http.StatusUnauthorized, "ERROR: Invalid user session.", "INVALID_USER_SESSION")
			return
		}
		h(w, r, sess, user)
	}
}

// requireGame additionally demands an initialized game and serializes access
// to it.
func (s *Server) requireGame(h func(http.ResponseWriter, *http.Request, *Session, *db.User, *Game)) http.HandlerFunc {
	return s.requireUser(func(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User) {
		sess.WithGame(func(g *Game) {
			if g == nil {
				writeReject(w, http.StatusBadRequest, "ERROR: No game active.", "NO_GAME_ACTIVE")
				return
			}
			h(w, r, sess, user, g)
		})
	})
}

func (s *Server) handleInitializeSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID string `json:"client_id"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	var user *db.User
	if sess, ok := s.sessions.FromRequest(r); ok {
		if u, err := s.db.GetUser(sess.UserID); err == nil {
			user = u
		} else {
			s.sessions.Drop(sess.Token)
		}
	}
	if user == nil && body.ClientID != "" {
		if u, err := s.db.GetUserByClientID(body.ClientID); err == nil {
			user = u
		}
	}
	if user == nil {
		u, err := s.db.CreateUser(body.ClientID, StartingTokens)
		if err != nil {
			s.log.Errorf("create user: %v", err)
			writeFault(w, http.StatusInternalServerError, "CRITICAL SERVER ERROR")
			return
		}
		user = u
		s.log.Infof("registered new user %s (client %s)", user.ID, user.ClientID)
	}

	s.sessions.Create(w, user.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"message":         "User session initialized.",
		"user_id":         user.ID,
		"client_id":       user.ClientID,
		"tokens":          user.Tokens,
		"game_state_hint": "USER_SESSION_INITIALIZED",
	})
}

func (s *Server) handleInitTokens(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User) {
	sess.SetGame(NewGame())
	writeJSON(w, http.StatusOK, map[string]any{
		"user_tokens": user.Tokens,
		"message":     "Tokens initialization.",
	})
}

func (s *Server) handleDeckLen(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	writeJSON(w, http.StatusOK, map[string]any{
		"deckLen": g.DeckLen(),
	})
}

func (s *Server) handleBet(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	var body struct {
		Bet int64 `json:"bet"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Bet <= 0 {
		writeReject(w, http.StatusBadRequest, "Invalid bet amount.", "INVALID_BET_AMOUNT_TYPE")
		return
	}
	if body.Bet < MinimumBet {
		writeReject(w, http.StatusBadRequest,
			fmt.Sprintf("Bet must be at least %d minimum.", MinimumBet), "BET_BELOW_MINIMUM")
		return
	}
	if user.Tokens < body.Bet {
		writeReject(w, http.StatusBadRequest, "Not enough tokens.", "NOT_ENOUGH_TOKENS_FOR_BET")
		return
	}

	tokens, err := s.db.AddTokens(user.ID, -body.Bet, "bet", "stake placed")
	if err != nil {
		s.log.Errorf("bet: debit failed for %s: %v", user.ID, err)
		writeFault(w, http.StatusInternalServerError, "CRITICAL SERVER ERROR")
		return
	}
	g.PlaceBet(body.Bet)
	s.writeState(w, tokens, g, "BET_SUCCESSFULLY_PLACED")
}

func (s *Server) handleRetakeBet(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	amount := g.RetakeBet()
	if amount == 0 {
		writeReject(w, http.StatusBadRequest, "No bet to retake.", "BET_LIST_EMPTY")
		return
	}
	tokens, err := s.db.AddTokens(user.ID, amount, "bet", "stake returned")
	if err != nil {
		s.log.Errorf("retake bet: credit failed for %s: %v", user.ID, err)
		writeFault(w, http.StatusInternalServerError, "CRITICAL SERVER ERROR")
		return
	}
	s.writeState(w, tokens, g, "BET_SUCCESSFULLY_RETAKEN")
}

func (s *Server) handleCreateDeck(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	g.CreateDeck()
	s.writeState(w, user.Tokens, g, "DECK_CREATED")
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	if err := g.StartRound(); err != nil {
		writeFault(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeState(w, user.Tokens, g, "NEW_ROUND_INITIALIZED")
}

func (s *Server) handleHit(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	if err := g.Hit(); err != nil {
		writeFault(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeState(w, user.Tokens, g, "HIT_RECEIVED")
}

func (s *Server) handleStand(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	if err := g.Stand(); err != nil {
		writeFault(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeState(w, user.Tokens, g, "PLAYER_STAND_ROUND_ENDED")
}

func (s *Server) handleDouble(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	cost := g.Bet()
	if user.Tokens < cost {
		writeReject(w, http.StatusPaymentRequired, "Insufficient tokens.", "INSUFFICIENT_FUNDS_FOR_DOUBLE")
		return
	}
	deducted := g.Double()
	tokens, err := s.db.AddTokens(user.ID, -deducted, "double", "wager doubled")
	if err != nil {
		s.log.Errorf("double: debit failed for %s: %v", user.ID, err)
		writeFault(w, http.StatusInternalServerError, "CRITICAL SERVER ERROR")
		return
	}
	s.writeState(w, tokens, g, "DOUBLE_PLACED")
}

func (s *Server) handleInsurance(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	cost := blackjack.InsuranceCost(g.Bet())
	if user.Tokens < cost {
		writeReject(w, http.StatusPaymentRequired, "Insufficient tokens.", "INSUFFICIENT_FUNDS")
		return
	}
	delta := g.Insurance()
	tokens, err := s.db.AddTokens(user.ID, delta, "insurance", "insurance resolved")
	if err != nil {
		s.log.Errorf("insurance: balance update failed for %s: %v", user.ID, err)
		writeFault(w, http.StatusInternalServerError, "CRITICAL SERVER ERROR")
		return
	}
	s.writeState(w, tokens, g, "INSURANCE_PROCESSED")
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	cost := g.Bet()
	if user.Tokens < cost {
		writeReject(w, http.StatusPaymentRequired, "Insufficient tokens.", "INSUFFICIENT_FUNDS")
		return
	}
	if err := g.Split(); err != nil {
		if errors.Is(err, ErrSplitNotAllowed) {
			writeReject(w, http.StatusBadRequest, "Split not possible.", "SPLIT_NOT_POSSIBLE_RULES")
			return
		}
		writeFault(w, http.StatusBadRequest, err.Error())
		return
	}
	tokens, err := s.db.AddTokens(user.ID, -cost, "split", "second hand staked")
	if err != nil {
		s.log.Errorf("split: debit failed for %s: %v", user.ID, err)
		writeFault(w, http.StatusInternalServerError, "CRITICAL SERVER ERROR")
		return
	}
	s.writeState(w, tokens, g, "SPLIT_SUCCESS")
}

func (s *Server) handleSplitHit(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	if err := g.Hit(); err != nil {
		writeFault(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeState(w, user.Tokens, g, "SPLIT_HIT_RECEIVED")
}

func (s *Server) handleSplitStand(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	if err := g.SplitStand(); err != nil {
		writeReject(w, http.StatusBadRequest, "No more split hands.", "NO_MORE_SPLIT_HANDS")
		return
	}
	s.writeState(w, user.Tokens, g, "SPLIT_HAND_STOOD")
}

func (s *Server) handleSplitNext(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	if err := g.ActivateNextSplit(); err != nil {
		if errors.Is(err, ErrNoSplitHands) {
			writeReject(w, http.StatusBadRequest, "No more split hands.", "NO_MORE_SPLIT_HANDS")
			return
		}
		writeFault(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeState(w, user.Tokens, g, "NEXT_SPLIT_HAND_ACTIVATED")
}

func (s *Server) handleSplitPop(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	if err := g.PopFinished(); err != nil {
		writeReject(w, http.StatusBadRequest, "No more split hands.", "NO_MORE_SPLIT_HANDS")
		return
	}
	s.writeState(w, user.Tokens, g, "FINISHED_HAND_ACTIVATED")
}

func (s *Server) handleSplitDouble(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	if user.Tokens < g.State().Player.Bet {
		writeReject(w, http.StatusPaymentRequired, "Insufficient tokens.", "INSUFFICIENT_FUNDS_FOR_DOUBLE")
		return
	}
	cost, err := g.SplitDouble()
	if err != nil {
		writeFault(w, http.StatusBadRequest, err.Error())
		return
	}
	tokens, err := s.db.AddTokens(user.ID, -cost, "double", "split wager doubled")
	if err != nil {
		s.log.Errorf("split double: debit failed for %s: %v", user.ID, err)
		writeFault(w, http.StatusInternalServerError, "CRITICAL SERVER ERROR")
		return
	}
	s.writeState(w, tokens, g, "SPLIT_DOUBLE_PLACED")
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	var body struct {
		IsSplitted bool `json:"is_splitted"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	reward := g.Rewards(body.IsSplitted)
	tokens := user.Tokens
	if reward != 0 {
		var err error
		tokens, err = s.db.AddTokens(user.ID, reward, "reward", "round settled")
		if err != nil {
			s.log.Errorf("rewards: credit failed for %s: %v", user.ID, err)
			writeFault(w, http.StatusInternalServerError, "CRITICAL SERVER ERROR")
			return
		}
	}
	s.writeState(w, tokens, g, "REWARDS_PROCESSED")
}

func (s *Server) handleRoundEnd(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	g.RoundEnd()
	s.writeState(w, user.Tokens, g, "ROUND_ENDED_GAME_RESET")
}

func (s *Server) handleSetRestart(w http.ResponseWriter, r *http.Request, sess *Session, user *db.User, g *Game) {
	g.Restart()
	if err := s.db.SetTokens(user.ID, StartingTokens, "restart", "bankroll restored"); err != nil {
		s.log.Errorf("set restart: reset failed for %s: %v", user.ID, err)
		writeFault(w, http.StatusInternalServerError, "CRITICAL SERVER ERROR")
		return
	}
	s.writeState(w, StartingTokens, g, "GAME_RESTARTED")
}

// handleForceRestart is the recovery path for clients stuck mid-round: it
// rebuilds the session and game for the given client identity, keeping the
// bankroll.
func (s *Server) handleForceRestart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID string `json:"client_id"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	user, err := s.db.GetUserByClientID(body.ClientID)
	if err != nil {
		user, err = s.db.CreateUser(body.ClientID, StartingTokens)
		if err != nil {
			s.log.Errorf("force restart: create user: %v", err)
			writeFault(w, http.StatusInternalServerError, "CRITICAL SERVER ERROR")
			return
		}
	}

	sess := s.sessions.Create(w, user.ID)
	g := NewGame()
	sess.SetGame(g)
	s.log.Infof("forced restart for user %s", user.ID)
	s.writeState(w, user.Tokens, g, "FORCED_RESTART")
}
