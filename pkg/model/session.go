package model

// Session is the client's current belief about who is logged in.
// Whether it is still valid is derived from the token, never stored.
type Session struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// IsZero reports whether the session holds neither a user nor a token.
func (s *Session) IsZero() bool {
	return s == nil || (s.User == nil && s.Token == "")
}
