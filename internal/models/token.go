package models

// TokenKind discriminates the two token families issued by the codec.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// TokenPair is returned to the caller after login, registration or rotation.
// It is ephemeral and never stored as an entity.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// ClientInfo carries request metadata used for session records, throttling
// and anomaly detection. IP and user agent are client-supplied and trusted
// at face value; upstream sanitization is out of this service's hands.
type ClientInfo struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	Location  string `json:"location,omitempty"`
}
