package card

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Domain errors mapped to HTTP statuses at the handler boundary.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionExpired     = errors.New("session expired")
)

// User is a registered account. PasswordHash is a bcrypt digest and never
// leaves the server.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Card is a stored business card. SharedWith lists user IDs the owner has
// granted read access to.
type Card struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Name       string    `json:"name"`
	Title      string    `json:"title"`
	Company    string    `json:"company"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Website    string    `json:"website"`
	Address    string    `json:"address"`
	Notes      string    `json:"notes"`
	ImagePath  string    `json:"image_path,omitempty"`
	ImageType  string    `json:"image_type,omitempty"`
	SharedWith []string  `json:"shared_with,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SessionToken is an opaque login session stored server-side.
type SessionToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SharedWithUser reports whether the card has been shared with the user.
func (c *Card) SharedWithUser(userID string) bool {
	for _, id := range c.SharedWith {
		if id == userID {
			return true
		}
	}
	return false
}

// VisibleTo reports whether the user may read the card.
func (c *Card) VisibleTo(userID string) bool {
	return c.OwnerID == userID || c.SharedWithUser(userID)
}

// IDGenerator generates unique IDs for users, cards, and sessions.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}
