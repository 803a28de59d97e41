package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/veildata/api/internal/auth"
	"github.com/veildata/api/internal/config"
	"github.com/veildata/api/internal/model"
	"github.com/veildata/api/internal/store"
)

// AuthService issues the verified caller identity the rest of the API trusts.
type AuthService struct {
	users *store.UserRepo
	cfg   *config.JWTConfig
}

func NewAuthService(users *store.UserRepo, cfg *config.JWTConfig) *AuthService {
	return &AuthService{users: users, cfg: cfg}
}

// Register creates a new organization with its owner user and returns a token.
func (s *AuthService) Register(ctx context.Context, req *model.RegisterRequest) (*model.AuthResponse, error) {
	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	org := &model.Organization{Name: req.OrganizationName}
	user := &model.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Role:         model.RoleOwner,
	}
	if err := s.users.CreateWithOrganization(ctx, org, user); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return s.respond(user)
}

func (s *AuthService) Login(ctx context.Context, req *model.LoginRequest) (*model.AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return s.respond(user)
}

func (s *AuthService) respond(user *model.User) (*model.AuthResponse, error) {
	token, err := auth.IssueToken(user, s.cfg.Secret, time.Duration(s.cfg.Expiration)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &model.AuthResponse{Token: token, User: user}, nil
}
