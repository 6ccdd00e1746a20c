package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"flowstate/internal/model"
	"flowstate/internal/repository"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := repository.NewDB("sqlite", "file:auth_"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	s := NewService(repository.NewUserRepository(db), "test-secret", 7*24*time.Hour, nil)
	s.cost = bcrypt.MinCost
	return s
}

func TestSignUpAndSignIn(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	user, session, err := s.SignUp(ctx, "  Alice@Example.com ", "secret1")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("email = %q", user.Email)
	}
	if session.TokenType != "bearer" || session.ExpiresIn != 604800 {
		t.Errorf("session = %+v", session)
	}

	id, err := s.Verify(ctx, session.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != user.ID || id.Email != user.Email {
		t.Errorf("identity = %+v, want %s/%s", id, user.ID, user.Email)
	}

	if _, _, err := s.SignUp(ctx, "alice@example.com", "another1"); !errors.Is(err, ErrUserExists) {
		t.Errorf("second SignUp: got %v, want ErrUserExists", err)
	}

	signedIn, _, err := s.SignIn(ctx, "alice@example.com", "secret1")
	if err != nil || signedIn.ID != user.ID {
		t.Fatalf("SignIn: %+v %v", signedIn, err)
	}
}

func TestSignInFailuresLookAlike(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if _, _, err := s.SignUp(ctx, "bob@example.com", "hunter22"); err != nil {
		t.Fatal(err)
	}

	if _, _, err := s.SignIn(ctx, "bob@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: %v", err)
	}
	if _, _, err := s.SignIn(ctx, "nobody@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: %v", err)
	}
	if _, _, err := s.SignIn(ctx, " ", "x"); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("blank email: %v", err)
	}
	_, _, err := s.SignUp(ctx, "carol@example.com", "123")
	var vErr *model.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "password" {
		t.Errorf("short password: %v", err)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, session, err := s.SignUp(ctx, "dave@example.com", "password")
	if err != nil {
		t.Fatal(err)
	}

	other := NewService(nil, "other-secret", time.Hour, nil)
	forged, err := other.issue(&model.User{ID: "u", Email: "e"})
	if err != nil {
		t.Fatal(err)
	}

	code, _, err := s.IssueLinkCode("someone")
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string]string{
		"empty":     "",
		"garbage":   "not-a-token",
		"forged":    forged.AccessToken,
		"link code": code,
		"tampered":  session.AccessToken[:len(session.AccessToken)-2] + "xx",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Verify(ctx, token); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("got %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestTokenExpires(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, session, err := s.SignUp(ctx, "erin@example.com", "password")
	if err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	if _, err := s.Verify(ctx, session.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expired token: %v", err)
	}
}

func TestSignOutRevokes(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, first, err := s.SignUp(ctx, "frank@example.com", "password")
	if err != nil {
		t.Fatal(err)
	}
	_, second, err := s.SignIn(ctx, "frank@example.com", "password")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SignOut(ctx, first.AccessToken); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := s.Verify(ctx, first.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("revoked token still valid: %v", err)
	}
	if _, err := s.Verify(ctx, second.AccessToken); err != nil {
		t.Errorf("other session revoked too: %v", err)
	}
	if err := s.SignOut(ctx, "junk"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("SignOut junk: %v", err)
	}
}

func TestLinkCode(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	code, expires, err := s.IssueLinkCode("user-1")
	if err != nil {
		t.Fatal(err)
	}
	if d := time.Until(expires); d <= 0 || d > LinkCodeTTL {
		t.Errorf("expires in %v", d)
	}
	got, err := s.ParseLinkCode(ctx, " "+code+"\n")
	if err != nil || got != "user-1" {
		t.Fatalf("ParseLinkCode = %q, %v", got, err)
	}

	s.now = func() time.Time { return time.Now().Add(LinkCodeTTL + time.Minute) }
	if _, err := s.ParseLinkCode(ctx, code); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("stale code accepted: %v", err)
	}
}

func TestLinkCodeSingleUse(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	first, _, err := s.IssueLinkCode("user-1")
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := s.IssueLinkCode("user-1")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RevokeLinkCode(ctx, first); err != nil {
		t.Fatalf("RevokeLinkCode: %v", err)
	}
	if _, err := s.ParseLinkCode(ctx, first); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("redeemed code accepted again: %v", err)
	}
	if got, err := s.ParseLinkCode(ctx, second); err != nil || got != "user-1" {
		t.Errorf("other code = %q, %v", got, err)
	}
	if err := s.RevokeLinkCode(ctx, "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("revoke garbage: %v", err)
	}
}

func TestPasswordIsTrimmed(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	user, _, err := s.SignUp(ctx, "hal@example.com", "  secret1 ")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	for _, password := range []string{"secret1", " secret1", "secret1\t"} {
		got, _, err := s.SignIn(ctx, "hal@example.com", password)
		if err != nil || got.ID != user.ID {
			t.Errorf("SignIn(%q) = %v", password, err)
		}
	}
	if _, _, err := s.SignIn(ctx, "hal@example.com", "   "); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("blank password: %v", err)
	}
}

func TestUserLookup(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	user, _, err := s.SignUp(ctx, "gina@example.com", "password")
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.User(ctx, Identity{UserID: user.ID})
	if err != nil || got.Email != "gina@example.com" {
		t.Fatalf("User: %+v %v", got, err)
	}
	if _, err := s.User(ctx, Identity{UserID: "gone"}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("missing user: %v", err)
	}
}
