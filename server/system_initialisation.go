package server

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-hub/internal/config"
	"github.com/jrsteele09/go-auth-hub/users"
)

// InitialiseSystem promotes the configured admin account. An address that has
// not registered yet is promoted on a later start or config reload.
func (s *Server) InitialiseSystem(ctx context.Context, cfg config.EnvConfig) error {
	email := cfg.GetAdminEmail()
	if email == "" {
		return nil
	}

	repo := s.store.Repos().Users
	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to look up admin: %w", err)
	}
	if user == nil {
		log.Info().Str("email", email).Msg("admin account not registered yet")
		return nil
	}
	if user.IsAdmin() {
		return nil
	}
	if err := repo.UpdateRole(ctx, user.ID, users.RoleAdmin); err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to promote admin: %w", err)
	}
	log.Info().Str("email", email).Str("user_id", user.ID).Msg("promoted admin account")
	return nil
}
