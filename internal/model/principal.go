package model

// Principal is the identity every file operation is scoped to. RootPath is
// relative to the storage root and is never mutated by the core.
type Principal struct {
	ID       string `json:"id"`
	RootPath string `json:"root_path"`
	Active   bool   `json:"active"`
}

type AuthClaims struct {
	UserID  string `json:"sub"`
	Type    string `json:"typ"`
	TokenID string `json:"jti"`
}
