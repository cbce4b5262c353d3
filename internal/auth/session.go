package auth

import (
	"github.com/gin-contrib/sessions"
)

const (
	sessionKeyUserID    = "user_id"
	sessionKeyUsername  = "username"
	sessionKeyAnonReads = "anon_reads"
)

// SessionState is the typed view of the per-browser cookie session. A new
// session starts with AnonReads == 0; only discarding the session resets it.
type SessionState struct {
	UserID    uint
	Username  string
	AnonReads int
}

// Actor derives the requester from the session.
func (s SessionState) Actor() Actor {
	return Actor{UserID: s.UserID, Username: s.Username}
}

// LoadState reads the session record, tolerating the integer types produced
// by different session codecs.
func LoadState(session sessions.Session) SessionState {
	var state SessionState
	state.UserID = toUint(session.Get(sessionKeyUserID))
	if name, ok := session.Get(sessionKeyUsername).(string); ok {
		state.Username = name
	}
	state.AnonReads = int(toUint(session.Get(sessionKeyAnonReads)))
	if state.UserID == 0 {
		state.Username = ""
	}
	return state
}

// SaveState writes the record back and persists the session cookie.
func SaveState(session sessions.Session, state SessionState) error {
	if state.UserID == 0 {
		session.Delete(sessionKeyUserID)
		session.Delete(sessionKeyUsername)
	} else {
		session.Set(sessionKeyUserID, state.UserID)
		session.Set(sessionKeyUsername, state.Username)
	}
	session.Set(sessionKeyAnonReads, state.AnonReads)
	return session.Save()
}

// SignIn replaces the identity in the session while keeping the read counter.
func SignIn(session sessions.Session, userID uint, username string) error {
	state := LoadState(session)
	state.UserID = userID
	state.Username = username
	return SaveState(session, state)
}

// SignOut drops the identity but keeps the anonymous read counter, so
// signing out never refunds the quota. Only a new session starts fresh.
func SignOut(session sessions.Session) error {
	state := LoadState(session)
	state.UserID = 0
	state.Username = ""
	return SaveState(session, state)
}

func toUint(value interface{}) uint {
	switch v := value.(type) {
	case uint:
		return v
	case uint64:
		return uint(v)
	case uint32:
		return uint(v)
	case int:
		if v > 0 {
			return uint(v)
		}
	case int64:
		if v > 0 {
			return uint(v)
		}
	case int32:
		if v > 0 {
			return uint(v)
		}
	case float64:
		if v > 0 {
			return uint(v)
		}
	}
	return 0
}
