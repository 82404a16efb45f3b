package users

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/parishdesk/parishdesk/internal/gate"
	"github.com/parishdesk/parishdesk/internal/navigation"
	"github.com/parishdesk/parishdesk/internal/notifications"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context) ([]Account, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// RoleSetter changes the role stored on a profile.
type RoleSetter interface {
	SetRole(ctx context.Context, id uuid.UUID, role gate.Role) error
}

// Notifier delivers a notification to one user.
type Notifier interface {
	Publish(ctx context.Context, userID uuid.UUID, d notifications.Draft) (int64, error)
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	roles    RoleSetter
	notifier Notifier
	logger   *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, roles RoleSetter, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, notifier: notifier, logger: logger}
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// ChangeRole assigns role to target on behalf of actor. The target's open
// sessions pick the change up on their next profile read.
func (s *Service) ChangeRole(ctx context.Context, actor, target uuid.UUID, role gate.Role) error {
	if actor == target {
		return ErrSelfChange
	}
	if !role.In(Assignable...) {
		return ErrUnknownRole
	}
	if err := s.roles.SetRole(ctx, target, role); err != nil {
		return err
	}
	s.logger.Info("role changed", slog.String("actor", actor.String()), slog.String("target", target.String()), slog.String("role", string(role)))
	s.notify(ctx, target, notifications.Draft{
		Type:    notifications.TypeInfo,
		Title:   "Your role has changed",
		Message: "You are now " + navigation.RoleLabel(role) + ".",
	})
	return nil
}

// SetActive enables or disables target on behalf of actor.
func (s *Service) SetActive(ctx context.Context, actor, target uuid.UUID, active bool) error {
	if actor == target {
		return ErrSelfChange
	}
	if err := s.repo.SetActive(ctx, target, active); err != nil {
		return err
	}
	s.logger.Info("account activation changed", slog.String("actor", actor.String()), slog.String("target", target.String()), slog.Bool("active", active))
	return nil
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, d notifications.Draft) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Publish(ctx, userID, d); err != nil {
		s.logger.Warn("notify user", slog.String("user", userID.String()), slog.Any("error", err))
	}
}
