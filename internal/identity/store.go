// internal/identity/store.go

// Package identity persists the room/user/display-name triplet that survives
// reconnects and restarts. RoomID is session-scoped (independent sessions may
// sit in different rooms); UserID, UserName and the session token are
// profile-scoped so a kicked or dropped user can rejoin as the same person.
package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// Storage keys. roomKey lives in the session scope; the rest are profile-scoped.
const (
	roomKey  = "roomId"
	userKey  = "userId"
	nameKey  = "userName"
	tokenKey = "sessionToken"
)

// Identity is the persisted triplet. Empty string means unset. In Write, only
// non-empty fields are considered; clearing goes through the Clear methods.
type Identity struct {
	RoomID   string
	UserID   string
	UserName string
}

// Complete reports whether the identity is sufficient to open a connection.
func (id Identity) Complete() bool {
	return id.RoomID != "" && id.UserID != ""
}

// Store reads and writes Identity across the two storage scopes. Storage
// failures degrade to a logged no-op: the session simply does not persist.
type Store struct {
	session Storage
	profile Storage
	log     *logrus.Logger
}

// NewStore wires the two scopes and runs the one-time migration that removes a
// legacy profile-scoped roomId left over from the earlier storage scheme.
func NewStore(session, profile Storage, logger *logrus.Logger) *Store {
	s := &Store{session: session, profile: profile, log: logger}
	if err := profile.Delete(roomKey); err != nil {
		logger.WithError(err).Warn("identity: legacy roomId migration failed")
	}
	return s
}

// Read assembles the current identity. A failed storage read yields an empty
// field, never an error.
func (s *Store) Read() Identity {
	return Identity{
		RoomID:   s.get(s.session, roomKey),
		UserID:   s.get(s.profile, userKey),
		UserName: s.get(s.profile, nameKey),
	}
}

// Write persists the non-empty fields of partial, skipping any field whose
// committed value is already identical so downstream observers only see real
// transitions.
func (s *Store) Write(partial Identity) {
	cur := s.Read()
	if partial.RoomID != "" && partial.RoomID != cur.RoomID {
		s.set(s.session, roomKey, partial.RoomID)
	}
	if partial.UserID != "" && partial.UserID != cur.UserID {
		s.set(s.profile, userKey, partial.UserID)
	}
	if partial.UserName != "" && partial.UserName != cur.UserName {
		s.set(s.profile, nameKey, partial.UserName)
	}
}

// ClearRoom forgets the room only. Used when a room closes or the user leaves
// voluntarily; the same person can rejoin elsewhere without re-entering a name.
func (s *Store) ClearRoom() {
	s.del(s.session, roomKey)
}

// ClearUser forgets the room and the user identity but keeps the display name.
// Used when the user is forcibly removed and a fresh identity is warranted.
func (s *Store) ClearUser() {
	s.del(s.session, roomKey)
	s.del(s.profile, userKey)
	s.del(s.profile, tokenKey)
}

// ClearAll forgets everything.
func (s *Store) ClearAll() {
	s.del(s.session, roomKey)
	s.del(s.profile, userKey)
	s.del(s.profile, nameKey)
	s.del(s.profile, tokenKey)
}

// WriteToken persists the platform session token (profile scope).
func (s *Store) WriteToken(token string) {
	if token == "" {
		return
	}
	s.set(s.profile, tokenKey, token)
}

// Token returns the stored session token, or empty.
func (s *Store) Token() string {
	return s.get(s.profile, tokenKey)
}

// TokenExpired reports whether the stored token carries an exp claim in the
// past. The claim is read without signature verification; the server remains
// the authority, this only short-circuits obviously dead sessions.
func (s *Store) TokenExpired(now time.Time) bool {
	token := s.Token()
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		s.log.WithError(err).Warn("identity: stored session token is unparseable")
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false // no exp claim => token never expires
	}
	return exp.Before(now)
}

func (s *Store) get(st Storage, key string) string {
	v, err := st.Get(key)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("identity: storage read failed")
		return ""
	}
	return v
}

func (s *Store) set(st Storage, key, value string) {
	if err := st.Set(key, value); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("identity: storage write failed")
	}
}

func (s *Store) del(st Storage, key string) {
	if err := st.Delete(key); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("identity: storage delete failed")
	}
}
