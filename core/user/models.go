package user

import (
	"context"
	"errors"
	"strings"
)

var (
	// errors
	ErrNotFound = errors.New("user not found")
)

type (
	Repository interface {
		GetUserByID(ctx context.Context, id string) (User, error)
	}

	// User is the slice of the platform's user record this engine needs:
	// identity for templating and the activity/verification gates.
	User struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		Email         string `json:"email"`
		IsActive      bool   `json:"is_active"`
		EmailVerified bool   `json:"email_verified"`
	}
)

// FirstName returns the leading word of the user's full name.
func (u User) FirstName() string {
	name := strings.TrimSpace(u.Name)
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}

// CanBeNotified gates all outbound reminders.
func (u User) CanBeNotified() bool {
	return u.IsActive && u.EmailVerified && u.Email != ""
}
