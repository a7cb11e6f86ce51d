package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"callcenter-platform/internal/auth"
	"callcenter-platform/internal/rbac"
)

var (
	ErrValidation  = errors.New("users: invalid request")
	ErrBadPassword = errors.New("users: invalid credentials")
)

// Service handles account registration and credential exchange. Invalid
// email and wrong password collapse into the same ErrBadPassword so login
// responses do not leak which accounts exist.
type Service struct {
	store  Store
	tokens *auth.Manager
	clock  func() time.Time
}

func NewService(store Store, tokens *auth.Manager) *Service {
	return &Service{store: store, tokens: tokens, clock: time.Now}
}

// SetClock overrides the service clock; tests only.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

type RegisterParams struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Service) Register(ctx context.Context, p RegisterParams) (User, error) {
	p.Email = strings.TrimSpace(p.Email)
	if p.Email == "" || !strings.Contains(p.Email, "@") {
		return User{}, fmt.Errorf("%w: valid email required", ErrValidation)
	}
	if len(p.Password) < 8 {
		return User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	if p.Role == "" {
		p.Role = rbac.RoleAgent
	}
	if !rbac.IsValid(p.Role) {
		return User{}, fmt.Errorf("%w: unknown role %q", ErrValidation, p.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	return s.store.Create(ctx, User{
		Email:        p.Email,
		Name:         strings.TrimSpace(p.Name),
		Role:         p.Role,
		PasswordHash: string(hash),
	})
}

type LoginResult struct {
	User   User
	Tokens auth.TokenPair
}

func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrBadPassword
		}
		return LoginResult{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return LoginResult{}, ErrBadPassword
	}

	pair, err := s.tokens.IssuePair(s.clock(), u.ID, u.Role)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: u, Tokens: pair}, nil
}

// Refresh exchanges a valid refresh token for a new pair. The role is
// re-read from the store, so role changes take effect on the next refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (LoginResult, error) {
	claims, err := s.tokens.Verify(refreshToken, auth.TokenTypeRefresh, s.clock())
	if err != nil {
		return LoginResult{}, ErrBadPassword
	}
	u, err := s.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrBadPassword
		}
		return LoginResult{}, err
	}

	pair, err := s.tokens.IssuePair(s.clock(), u.ID, u.Role)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: u, Tokens: pair}, nil
}
