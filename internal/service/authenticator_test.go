package service

import (
	"context"
	"errors"
	"testing"
)

func TestAuthenticator_Authenticate(t *testing.T) {
	env := newTestEnv(t)
	password := "UserPassword123!"
	registered := env.register(t, "TestUser", "test@example.com", password)

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{name: "successful login", username: "testuser", password: password},
		{name: "username is case-insensitive", username: "TESTUSER", password: password},
		{name: "surrounding whitespace ignored", username: "  testuser ", password: password},
		{name: "wrong password", username: "testuser", password: "WrongPassword", wantErr: ErrInvalidCredentials},
		{name: "non-existent user", username: "nobody", password: password, wantErr: ErrInvalidCredentials},
		{name: "empty password", username: "testuser", password: "", wantErr: ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := env.authenticator.Authenticate(context.Background(), tt.username, tt.password)

			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErr)
				}
				if user != nil {
					t.Error("Authenticate() returned a user alongside an error")
				}
				return
			}

			if err != nil {
				t.Fatalf("Authenticate() unexpected error = %v", err)
			}
			if user.ID != registered.ID {
				t.Errorf("Authenticate() user ID = %v, want %v", user.ID, registered.ID)
			}
			if user.PasswordHash != "" {
				t.Error("Authenticate() returned user with password hash (security issue)")
			}
		})
	}
}

func TestAuthenticator_FailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "", "AlicePassword1")

	_, wrongPassword := env.authenticator.Authenticate(context.Background(), "alice", "NotAlicesPassword")
	_, unknownUser := env.authenticator.Authenticate(context.Background(), "mallory", "NotAlicesPassword")

	if wrongPassword == nil || unknownUser == nil {
		t.Fatal("Authenticate() expected both attempts to fail")
	}
	if wrongPassword != unknownUser {
		t.Errorf("wrong password error %v differs from unknown user error %v", wrongPassword, unknownUser)
	}
	if wrongPassword.Error() != unknownUser.Error() {
		t.Errorf("error messages differ: %q vs %q", wrongPassword.Error(), unknownUser.Error())
	}
}

func TestAuthenticator_CorruptStoredHash(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "corrupt-id", "corrupt", "not-a-bcrypt-hash")

	_, err := env.authenticator.Authenticate(context.Background(), "corrupt", "whatever123")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Authenticate() error = %v, want %v", err, ErrInvalidCredentials)
	}
}

func TestAuthenticator_VerifyPassword(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "bob", "", "BobPassword1")

	if _, err := env.authenticator.VerifyPassword(context.Background(), user.ID, "BobPassword1"); err != nil {
		t.Errorf("VerifyPassword() unexpected error = %v", err)
	}
	if _, err := env.authenticator.VerifyPassword(context.Background(), user.ID, "wrong-password"); err != ErrInvalidCredentials {
		t.Errorf("VerifyPassword(wrong) error = %v, want %v", err, ErrInvalidCredentials)
	}
	if _, err := env.authenticator.VerifyPassword(context.Background(), "missing", "BobPassword1"); err != ErrInvalidCredentials {
		t.Errorf("VerifyPassword(missing user) error = %v, want %v", err, ErrInvalidCredentials)
	}
}
