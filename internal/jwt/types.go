package jwt

type Role int

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type User struct {
	Id           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
}

// Identity is the resolved result of credential verification: who is on the
// other end of a connection and in what role.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   Role
}

// IsAgent reports whether the identity may join the admin room.
func (i Identity) IsAgent() bool {
	return i.Role == RoleAgent
}
