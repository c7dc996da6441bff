package session

// Entry is the metadata stored for one issued token.
type Entry struct {
	AccountID string
	TokenID   string
	Role      string
	IssuedAt  int64
	ExpiresAt int64
}

// Status is the outcome of a registry check.
type Status int

const (
	// StatusValid means the token is the account's current token.
	StatusValid Status = iota + 1
	// StatusNoSession means the account has no current token.
	StatusNoSession
	// StatusSuperseded means a newer login replaced the token.
	StatusSuperseded
	// StatusMetadataMissing means the pointer matches but the metadata is gone.
	StatusMetadataMissing
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusNoSession:
		return "no_session"
	case StatusSuperseded:
		return "superseded"
	case StatusMetadataMissing:
		return "metadata_missing"
	default:
		return "unknown"
	}
}
