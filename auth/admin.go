package auth

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-hub/audit"
	"github.com/jrsteele09/go-auth-hub/credentials"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/users"
)

// UserDetail is what an admin sees of one account.
type UserDetail struct {
	User         *users.User
	ExternalIDs  []users.ExternalID
	Passkeys     []*credentials.Credential
	SecurityKeys []*credentials.Credential
}

// AuditEventDetail is an audit event with the user it names, if that user
// still exists.
type AuditEventDetail struct {
	Event *audit.Event
	User  *users.User
}

func requireAdmin(c Caller) error {
	if err := require2FA(c); err != nil {
		return err
	}
	if !c.User.IsAdmin() {
		return errors.Wrap(apperrors.ErrForbidden, "admin role required")
	}
	return nil
}

// requireOtherUser stops an admin acting on their own account through the
// admin surface.
func requireOtherUser(c Caller, userID string) error {
	if userID == "" {
		return ErrMissingFields
	}
	if userID == c.User.ID {
		return errors.Wrap(apperrors.ErrForbidden, "cannot manage own account here")
	}
	return nil
}

// UpdateSetting stores a settings document and reloads the snapshot.
func (s *Service) UpdateSetting(ctx context.Context, c Caller, key string, value []byte) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	if s.deps.Settings == nil {
		return errors.New("[Service.UpdateSetting] settings are not configured")
	}
	if err := s.deps.Settings.Update(ctx, key, value); err != nil {
		return errors.Wrap(err, "[Service.UpdateSetting]")
	}
	s.record(ctx, audit.SettingUpdated, c, c.User.ID, map[string]string{"key": key})
	return nil
}

// AuditLog pages through recorded events, newest first.
func (s *Service) AuditLog(ctx context.Context, c Caller, limit, offset int) ([]*audit.Event, error) {
	if err := requireAdmin(c); err != nil {
		return nil, err
	}
	events, err := s.deps.Audit.List(ctx, limit, offset)
	return events, errors.Wrap(err, "[Service.AuditLog]")
}

func (s *Service) AuditEvent(ctx context.Context, c Caller, id string) (*AuditEventDetail, error) {
	if err := requireAdmin(c); err != nil {
		return nil, err
	}
	event, err := s.deps.Audit.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.AuditEvent]")
	}
	if event == nil {
		return nil, apperrors.ErrNotFound
	}
	detail := &AuditEventDetail{Event: event}
	if event.UserID != nil {
		if detail.User, err = s.deps.Store.Repos().Users.GetByID(ctx, *event.UserID); err != nil {
			return nil, errors.Wrap(err, "[Service.AuditEvent] user")
		}
	}
	return detail, nil
}

// ListUsers pages through accounts, oldest first.
func (s *Service) ListUsers(ctx context.Context, c Caller, limit, offset int) ([]*users.User, error) {
	if err := requireAdmin(c); err != nil {
		return nil, err
	}
	list, err := s.deps.Store.Repos().Users.List(ctx, limit, offset)
	return list, errors.Wrap(err, "[Service.ListUsers]")
}

func (s *Service) GetUser(ctx context.Context, c Caller, userID string) (*UserDetail, error) {
	if err := requireAdmin(c); err != nil {
		return nil, err
	}
	repo := s.deps.Store.Repos().Users
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.GetUser]")
	}
	if user == nil {
		return nil, apperrors.ErrNotFound
	}
	detail := &UserDetail{User: user}
	if detail.ExternalIDs, err = repo.ListExternalIDs(ctx, userID); err != nil {
		return nil, errors.Wrap(err, "[Service.GetUser] external ids")
	}
	if detail.Passkeys, err = s.deps.Credentials.ListWebAuthn(ctx, userID, credentials.KindPasskey); err != nil {
		return nil, errors.Wrap(err, "[Service.GetUser] passkeys")
	}
	if detail.SecurityKeys, err = s.deps.Credentials.ListWebAuthn(ctx, userID, credentials.KindSecurityKey); err != nil {
		return nil, errors.Wrap(err, "[Service.GetUser] security keys")
	}
	return detail, nil
}

// UnlinkExternalID detaches another user's federated login for provider.
func (s *Service) UnlinkExternalID(ctx context.Context, c Caller, userID, provider string) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	if err := requireOtherUser(c, userID); err != nil {
		return err
	}
	if provider == "" {
		return ErrMissingFields
	}
	removed, err := s.deps.Store.Repos().Users.UnlinkExternalID(ctx, userID, provider)
	if err != nil {
		return errors.Wrap(err, "[Service.UnlinkExternalID]")
	}
	if !removed {
		return apperrors.ErrNotFound
	}
	s.record(ctx, audit.UserUpdated, c, userID, map[string]string{"external_unlinked": provider, "by": c.User.ID})
	return nil
}

// DeleteUser removes another user along with their credentials and sessions.
func (s *Service) DeleteUser(ctx context.Context, c Caller, userID string) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	if err := requireOtherUser(c, userID); err != nil {
		return err
	}
	repo := s.deps.Store.Repos().Users
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "[Service.DeleteUser]")
	}
	if user == nil {
		return apperrors.ErrNotFound
	}
	if err := repo.Delete(ctx, userID); err != nil {
		return errors.Wrap(err, "[Service.DeleteUser]")
	}
	// Recorded against the admin; the deleted row can no longer be referenced.
	s.record(ctx, audit.UserDeleted, c, c.User.ID, map[string]string{"user_id": userID, "email": user.Email})
	return nil
}
