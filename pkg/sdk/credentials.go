package sdk

import "time"

// Credentials represents the authentication credentials held by a client.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

func (c *Credentials) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// ClientHint carries client-side guesses about the signed-in user, useful
// for optimistic UI only. Nothing here is verified and nothing here may
// feed an authorization decision; the server re-derives privilege from its
// own records on every call.
type ClientHint struct {
	IsAdminHint bool
}
