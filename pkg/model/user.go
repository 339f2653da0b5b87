package model

// UserRole represents the role of a user in the ALM platform.
type UserRole string

const (
	// RoleUser is a standard investor account.
	RoleUser UserRole = "user"
	// RoleAdmin can reach the admin panel (dashboards, forecasts, inference).
	RoleAdmin UserRole = "admin"
)

// User is the account record returned by the auth endpoints and persisted
// locally alongside the token.
type User struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Role      UserRole `json:"role"`
	CreatedAt string   `json:"createdAt,omitempty"`
}

// IsAdmin returns true if the user has admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// LoginRequest carries credentials for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest carries signup data for POST /auth/register.
type RegisterRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"-"` // checked locally, never sent
}

// LoginResponse is returned by login and register.
type LoginResponse struct {
	User         User   `json:"user"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// RefreshResponse is returned by POST /auth/refresh.
type RefreshResponse struct {
	Token string `json:"token"`
}
