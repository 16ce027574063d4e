package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smartgate/server/internal/auth"
	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

// AuthService signs portal users up and in.
type AuthService struct {
	store  store.Store
	tokens *auth.TokenIssuer
	dir    *DirectoryService
	opts   Options
}

func NewAuthService(st store.Store, tokens *auth.TokenIssuer, opts Options) *AuthService {
	opts = opts.withDefaults()
	return &AuthService{store: st, tokens: tokens, dir: NewDirectoryService(st, opts), opts: opts}
}

type SignupRequest struct {
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone,omitempty"`
	Programme string `json:"programme,omitempty"`
	Password  string `json:"password" validate:"required,min=8"`
}

type Session struct {
	Token     string     `json:"access_token"`
	TokenType string     `json:"token_type"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      types.User `json:"user"`
}

// Signup creates a guest account and returns a signed-in session.
func (a *AuthService) Signup(ctx context.Context, req SignupRequest) (Session, error) {
	if err := validateInput(req); err != nil {
		return Session{}, err
	}
	u, err := a.dir.CreateUser(ctx, UserInput{
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Programme: req.Programme,
		Role:      types.RoleGuest,
		Password:  req.Password,
	})
	if err != nil {
		return Session{}, err
	}
	a.opts.Logger.Info("portal signup", "user", u.ID)
	return a.session(u)
}

// Login accepts an email, a name or a user id as identifier.
func (a *AuthService) Login(ctx context.Context, identifier, password string) (Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	var u types.User
	err := a.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		u, err = tx.Users().FindByLogin(ctx, identifier)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		a.opts.Logger.Info("portal login rejected", "user", u.ID)
		return Session{}, ErrInvalidCredentials
	}
	return a.session(u)
}

func (a *AuthService) session(u types.User) (Session, error) {
	token, err := a.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{
		Token:     token,
		TokenType: "bearer",
		ExpiresAt: a.opts.now().Add(a.tokens.TTL()),
		User:      u,
	}, nil
}
