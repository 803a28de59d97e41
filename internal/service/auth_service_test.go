package service

import (
	"context"
	"errors"
	"testing"

	"github.com/veildata/api/internal/auth"
	"github.com/veildata/api/internal/config"
	"github.com/veildata/api/internal/model"
)

func newAuthService(env *testEnv) *AuthService {
	return NewAuthService(env.users, &config.JWTConfig{Secret: "test-secret", Expiration: 1})
}

func registerRequest() *model.RegisterRequest {
	return &model.RegisterRequest{
		OrganizationName: "Acme",
		Email:            "owner@acme.test",
		Password:         "hunter2hunter2",
		Name:             "Owner",
	}
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuthService(env)

	resp, err := svc.Register(context.Background(), registerRequest())
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected a token")
	}
	if resp.User.Role != model.RoleOwner {
		t.Errorf("expected owner role, got %s", resp.User.Role)
	}
	if resp.User.OrganizationID == 0 {
		t.Error("expected organization created")
	}

	claims, err := auth.ValidateToken(resp.Token, "test-secret")
	if err != nil {
		t.Fatalf("token does not validate: %v", err)
	}
	if claims.UserID != resp.User.ID || claims.OrganizationID != resp.User.OrganizationID {
		t.Errorf("claims mismatch: %+v", claims)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuthService(env)

	if _, err := svc.Register(context.Background(), registerRequest()); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	_, err := svc.Register(context.Background(), registerRequest())
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuthService(env)

	if _, err := svc.Register(context.Background(), registerRequest()); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	resp, err := svc.Login(context.Background(), &model.LoginRequest{
		Email:    "owner@acme.test",
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected a token")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuthService(env)

	if _, err := svc.Register(context.Background(), registerRequest()); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, err := svc.Login(context.Background(), &model.LoginRequest{
		Email:    "owner@acme.test",
		Password: "wrong-password",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuthService(env)

	_, err := svc.Login(context.Background(), &model.LoginRequest{
		Email:    "nobody@acme.test",
		Password: "whatever",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}
