package user

import "testing"

func TestUser_FirstName(t *testing.T) {
	tests := []struct {
		name string
		full string
		want string
	}{
		{name: "full name", full: "Amani Khamisi", want: "Amani"},
		{name: "single name", full: "Amani", want: "Amani"},
		{name: "padded", full: "  Amani Khamisi ", want: "Amani"},
		{name: "empty", full: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := User{Name: tt.full}
			if got := u.FirstName(); got != tt.want {
				t.Errorf("FirstName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUser_CanBeNotified(t *testing.T) {
	tests := []struct {
		name string
		usr  User
		want bool
	}{
		{name: "notifiable", usr: User{Email: "a@test.test", IsActive: true, EmailVerified: true}, want: true},
		{name: "inactive", usr: User{Email: "a@test.test", EmailVerified: true}, want: false},
		{name: "unverified", usr: User{Email: "a@test.test", IsActive: true}, want: false},
		{name: "no email", usr: User{IsActive: true, EmailVerified: true}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.usr.CanBeNotified(); got != tt.want {
				t.Errorf("CanBeNotified() = %v, want %v", got, tt.want)
			}
		})
	}
}
