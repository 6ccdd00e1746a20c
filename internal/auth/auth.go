// Package auth issues and verifies bearer tokens and resolves caller identity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"flowstate/internal/model"
	"flowstate/internal/repository"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserExists          = errors.New("user already exists")
	ErrMissingCredentials  = errors.New("email and password are required")
	errUnexpectedAlgorithm = errors.New("unexpected signing method")
)

const (
	issuer       = "flowstate"
	accessAud    = "flowstate"
	linkAud      = "telegram-link"
	LinkCodeTTL  = 15 * time.Minute
	minPasswordN = 6
)

// Identity is the resolved caller of a request.
type Identity struct {
	UserID string
	Email  string
}

// Session is the credential handed to a signed-in client.
type Session struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	ExpiresAt   int64  `json:"expires_at"`
}

// Claims carried by access tokens and link codes.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type Service struct {
	users    *repository.UserRepository
	secret   []byte
	ttl      time.Duration
	denylist Denylist
	now      func() time.Time
	cost     int
}

func NewService(users *repository.UserRepository, secret string, ttl time.Duration, denylist Denylist) *Service {
	if denylist == nil {
		denylist = NewMemoryDenylist()
	}
	return &Service{
		users:    users,
		secret:   []byte(secret),
		ttl:      ttl,
		denylist: denylist,
		now:      time.Now,
		cost:     bcrypt.DefaultCost,
	}
}

func normalizeCredentials(email, password string) (string, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return "", "", ErrMissingCredentials
	}
	return email, password, nil
}

// SignUp registers a new user and signs them in.
func (s *Service) SignUp(ctx context.Context, email, password string) (*model.User, Session, error) {
	email, password, err := normalizeCredentials(email, password)
	if err != nil {
		return nil, Session{}, err
	}
	if len(password) < minPasswordN {
		return nil, Session{}, &model.ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordN)}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, Session{}, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, Session{}, ErrUserExists
		}
		return nil, Session{}, err
	}
	session, err := s.issue(user)
	if err != nil {
		return nil, Session{}, err
	}
	return user, session, nil
}

// SignIn checks the password. A wrong password and an unknown e-mail fail the same way.
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.User, Session, error) {
	email, password, err := normalizeCredentials(email, password)
	if err != nil {
		return nil, Session{}, err
	}
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return nil, Session{}, fmt.Errorf("find user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, Session{}, ErrInvalidCredentials
	}
	session, err := s.issue(user)
	if err != nil {
		return nil, Session{}, err
	}
	return user, session, nil
}

// SignOut revokes the token until it would have expired anyway.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.parse(token, accessAud)
	if err != nil {
		return ErrUnauthorized
	}
	if err := s.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// Verify resolves a bearer token to the caller identity.
func (s *Service) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthorized
	}
	claims, err := s.parse(token, accessAud)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}
	revoked, err := s.denylist.Revoked(ctx, claims.ID)
	if err != nil {
		return Identity{}, fmt.Errorf("check denylist: %w", err)
	}
	if revoked {
		return Identity{}, ErrUnauthorized
	}
	return Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// User loads the account behind an identity.
func (s *Service) User(ctx context.Context, id Identity) (*model.User, error) {
	user, err := s.users.FindByID(ctx, id.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// IssueLinkCode returns a short-lived, single-use code that binds a Telegram chat to userID.
func (s *Service) IssueLinkCode(userID string) (string, time.Time, error) {
	expires := s.now().Add(LinkCodeTTL)
	code, err := s.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Audience:  jwt.ClaimStrings{linkAud},
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(s.now()),
			Issuer:    issuer,
		},
	})
	return code, expires, err
}

// ParseLinkCode returns the user a link code was issued for. A code that was
// already redeemed is rejected.
func (s *Service) ParseLinkCode(ctx context.Context, code string) (string, error) {
	claims, err := s.parseLinkCode(code)
	if err != nil {
		return "", err
	}
	revoked, err := s.denylist.Revoked(ctx, claims.ID)
	if err != nil {
		return "", fmt.Errorf("check denylist: %w", err)
	}
	if revoked {
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}

// RevokeLinkCode marks a link code as used.
func (s *Service) RevokeLinkCode(ctx context.Context, code string) error {
	claims, err := s.parseLinkCode(code)
	if err != nil {
		return err
	}
	if err := s.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke link code: %w", err)
	}
	return nil
}

func (s *Service) parseLinkCode(code string) (*Claims, error) {
	claims, err := s.parse(strings.TrimSpace(code), linkAud)
	if err != nil || claims.ID == "" {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

func (s *Service) issue(user *model.User) (Session, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	token, err := s.sign(Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{accessAud},
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	})
	if err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.ttl / time.Second),
		ExpiresAt:   expires.Unix(),
	}, nil
}

func (s *Service) sign(claims Claims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (s *Service) parse(token, audience string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %v", errUnexpectedAlgorithm, t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrUnauthorized
	}
	return claims, nil
}
