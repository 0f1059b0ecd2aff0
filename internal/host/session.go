package host

// User is the host account that opened the mini app.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// InitDataUnsafe is the decoded, unverified view of the init data string.
type InitDataUnsafe struct {
	QueryID    string
	User       *User
	AuthDate   int64
	StartParam string
	Hash       string
}

// SessionContext is what the host tells us about the current session.
type SessionContext struct {
	HostPresent bool
	InitData    string
	SessionID   string
	User        *User
}

// Ready reports whether checkout may be offered: a bridge is present and it
// handed us a non-empty init data token.
func (c SessionContext) Ready() bool {
	return c.HostPresent && c.InitData != ""
}

// Complete reports whether every field needed for an order is available.
func (c SessionContext) Complete() bool {
	return c.Ready() && c.SessionID != "" && c.User != nil
}

// ContextOf reads the session context exposed by b. A nil bridge yields the
// empty context.
func ContextOf(b Bridge) SessionContext {
	if b == nil {
		return SessionContext{}
	}
	unsafe := b.InitDataUnsafe()
	return SessionContext{
		HostPresent: true,
		InitData:    b.InitData(),
		SessionID:   unsafe.QueryID,
		User:        unsafe.User,
	}
}
