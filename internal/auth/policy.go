// Package auth decides who may read and change blog content.
//
// Anonymous visitors get a fixed number of full-post views per session
// before they must register or sign in; listings are never gated. Mutations
// are reserved for the owning user. Every denial is returned as a Decision
// so callers choose the redirect and message.
package auth

import (
	"net/url"
	"strings"
)

// DefaultReadLimit is the number of full posts an anonymous session may open.
const DefaultReadLimit = 5

// Outcome classifies a policy decision.
type Outcome int

const (
	Granted Outcome = iota
	QuotaExceeded
	Forbidden
	AuthRequired
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case QuotaExceeded:
		return "quota-exceeded"
	case Forbidden:
		return "forbidden"
	case AuthRequired:
		return "auth-required"
	default:
		return "unknown"
	}
}

// Decision is the result of a policy check. Next carries the local path the
// actor should return to after signing in, when one applies.
type Decision struct {
	Outcome Outcome
	Next    string
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.Outcome == Granted
}

// Actor is the requester of an operation. UserID 0 means anonymous.
type Actor struct {
	UserID   uint
	Username string
}

// Anonymous returns an actor identified only by its session.
func Anonymous() Actor {
	return Actor{}
}

// Authenticated reports whether the actor is a signed-in user.
func (a Actor) Authenticated() bool {
	return a.UserID != 0
}

// Policy holds the tunables of the read quota.
type Policy struct {
	ReadLimit int
}

// NewPolicy returns a policy with the default anonymous read limit.
func NewPolicy() Policy {
	return Policy{ReadLimit: DefaultReadLimit}
}

func (p Policy) limit() int {
	if p.ReadLimit <= 0 {
		return DefaultReadLimit
	}
	return p.ReadLimit
}

// AuthorizeView gates a full-post view. Signed-in users always pass. For an
// anonymous actor one unit of the session quota is consumed per call; once
// the quota is spent the state stays exhausted and target is preserved as the
// post-login destination. Repeat views of the same post are not deduplicated.
func (p Policy) AuthorizeView(actor Actor, state *SessionState, target string) Decision {
	if actor.Authenticated() {
		return Decision{Outcome: Granted}
	}
	if state.AnonReads >= p.limit() {
		return Decision{Outcome: QuotaExceeded, Next: SafeNext(target)}
	}
	state.AnonReads++
	return Decision{Outcome: Granted}
}

// AuthorizeMutate allows only the owner of a post, comment or account.
func (p Policy) AuthorizeMutate(actor Actor, ownerID uint, target string) Decision {
	if !actor.Authenticated() {
		return Decision{Outcome: AuthRequired, Next: SafeNext(target)}
	}
	if ownerID == 0 || actor.UserID != ownerID {
		return Decision{Outcome: Forbidden}
	}
	return Decision{Outcome: Granted}
}

// AuthorizeCreate allows any signed-in user.
func (p Policy) AuthorizeCreate(actor Actor, target string) Decision {
	if !actor.Authenticated() {
		return Decision{Outcome: AuthRequired, Next: SafeNext(target)}
	}
	return Decision{Outcome: Granted}
}

// QuotaState names the position of a session in the anonymous-read state machine.
type QuotaState string

const (
	QuotaFresh     QuotaState = "fresh"
	QuotaCounting  QuotaState = "counting"
	QuotaExhausted QuotaState = "exhausted"
)

// State reports where the session sits relative to the quota.
func (p Policy) State(state SessionState) QuotaState {
	switch {
	case state.AnonReads <= 0:
		return QuotaFresh
	case state.AnonReads >= p.limit():
		return QuotaExhausted
	default:
		return QuotaCounting
	}
}

// Remaining returns how many anonymous full-post views are left.
func (p Policy) Remaining(state SessionState) int {
	left := p.limit() - state.AnonReads
	if left < 0 {
		return 0
	}
	return left
}

// SafeNext keeps only local absolute paths so the post-login redirect cannot
// leave the site. Anything else collapses to "".
func SafeNext(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !strings.HasPrefix(trimmed, "/") {
		return ""
	}
	if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/\\") {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" {
		return ""
	}
	return trimmed
}
