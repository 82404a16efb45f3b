package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/parishdesk/parishdesk/internal/gate"
	"github.com/parishdesk/parishdesk/internal/notifications"
	"github.com/parishdesk/parishdesk/internal/password"
	"github.com/parishdesk/parishdesk/internal/shared"
)

// Notifier publishes a notification to one user.
type Notifier interface {
	Publish(ctx context.Context, userID uuid.UUID, d notifications.Draft) (int64, error)
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	notifier Notifier
	logger   *slog.Logger
}

// NewService constructs a Service. notifier may be nil.
func NewService(repo Repository, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

// SignIn validates email/password credentials.
func (s *Service) SignIn(ctx context.Context, email, plain string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	if err := password.Verify(user.PasswordHash, plain); err != nil {
		return nil, invalidCredentials()
	}
	if !user.IsActive {
		return nil, &AuthError{Code: CodeInactive, Message: "This account has been deactivated"}
	}
	return user, nil
}

// SignUp registers an account with the default role and welcomes it.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*User, error) {
	if err := password.Check(in.Password); err != nil {
		return nil, &AuthError{Code: CodeWeakPassword, Message: "Password does not meet the requirements", Err: err}
	}
	hash, err := password.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	user := User{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hash,
		IsActive:     true,
	}
	profile := gate.Profile{ID: user.ID, Role: gate.RoleUser, FullName: strings.TrimSpace(in.FullName)}
	if err := s.repo.CreateAccount(ctx, user, profile); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, &AuthError{Code: CodeEmailTaken, Message: "An account with this email already exists", Err: err}
		}
		return nil, fmt.Errorf("auth: create account: %w", err)
	}

	if s.notifier != nil {
		_, err := s.notifier.Publish(ctx, user.ID, notifications.Draft{
			Type:    notifications.TypeSuccess,
			Title:   "Welcome to ParishDesk",
			Message: "Your account is ready. Update your profile to get started.",
			Link:    "/auth/password",
		})
		if err != nil {
			s.logger.Warn("publish welcome notification", slog.String("user_id", user.ID.String()), slog.Any("error", err))
		}
	}
	return &user, nil
}

// ChangePassword replaces the password of subject after checking current.
func (s *Service) ChangePassword(ctx context.Context, subject uuid.UUID, current, next string) error {
	user, err := s.repo.FindByID(ctx, subject)
	if err != nil {
		return fmt.Errorf("auth: find user: %w", err)
	}
	if err := password.Verify(user.PasswordHash, current); err != nil {
		return &AuthError{Code: CodeInvalidCredentials, Message: "Current password is incorrect"}
	}
	if err := password.Check(next); err != nil {
		return &AuthError{Code: CodeWeakPassword, Message: "Password does not meet the requirements", Err: err}
	}
	hash, err := password.Hash(next)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, subject, hash); err != nil {
		return fmt.Errorf("auth: update password: %w", err)
	}
	return nil
}
