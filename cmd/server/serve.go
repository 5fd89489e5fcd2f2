package main

import (
	"context"
	"crypto/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-auth-hub/audit"
	"github.com/jrsteele09/go-auth-hub/auth"
	"github.com/jrsteele09/go-auth-hub/challenge"
	"github.com/jrsteele09/go-auth-hub/credentials"
	"github.com/jrsteele09/go-auth-hub/emailverification"
	"github.com/jrsteele09/go-auth-hub/encryption"
	"github.com/jrsteele09/go-auth-hub/federation"
	"github.com/jrsteele09/go-auth-hub/internal/config"
	"github.com/jrsteele09/go-auth-hub/internal/logging"
	"github.com/jrsteele09/go-auth-hub/internal/metrics"
	"github.com/jrsteele09/go-auth-hub/mail"
	"github.com/jrsteele09/go-auth-hub/passwordreset"
	"github.com/jrsteele09/go-auth-hub/ratelimit"
	"github.com/jrsteele09/go-auth-hub/server"
	"github.com/jrsteele09/go-auth-hub/sessions"
	"github.com/jrsteele09/go-auth-hub/settings"
	"github.com/jrsteele09/go-auth-hub/store"
	"github.com/jrsteele09/go-auth-hub/store/memstore"
	"github.com/jrsteele09/go-auth-hub/store/postgres"
	"github.com/jrsteele09/go-auth-hub/webauthn"
)

const (
	shutdownTimeout = 5 * time.Second
	challengeTTL    = 5 * time.Minute
)

// app is everything serve starts and later stops.
type app struct {
	loader     *config.Loader
	store      store.Store
	settings   *settings.Manager
	limiters   *ratelimit.Limiters
	challenges *challenge.Store
	server     *server.Server
}

func runServe(cmd *cobra.Command, _ []string) (returnError error) {
	loader, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := loader.Config()
	displayAppname(cfg.GetAppName())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	a, err := buildApp(ctx, loader)
	if err != nil {
		return err
	}
	defer a.store.Close()

	a.startWorkers(ctx, cfg.GetCleanupInterval())
	go a.reloadOnHangup(ctx)

	httpServer := &http.Server{
		Addr:              cfg.GetPort(),
		Handler:           a.server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Str("env", cfg.GetEnv()).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- errors.Wrap(err, "[runServe] listen failed")
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	return shutdown(httpServer)
}

func buildApp(ctx context.Context, loader *config.Loader) (*app, error) {
	cfg := loader.Config()

	keys, err := keySource(cfg)
	if err != nil {
		return nil, err
	}
	envelope, err := encryption.New(keys)
	if err != nil {
		return nil, err
	}
	// Fail at startup rather than on the first request if the key is missing.
	if _, err := envelope.Encrypt(ctx, []byte("startup")); err != nil {
		return nil, errors.Wrap(err, "[buildApp] encryption key unavailable")
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	repos := st.Repos()

	settingsManager, err := settings.NewManager(repos.Settings, envelope)
	if err != nil {
		return nil, err
	}
	if err := settingsManager.Reload(ctx); err != nil {
		return nil, err
	}

	sessionManager, err := sessions.NewManager(repos.Sessions,
		sessions.WithExpiry(cfg.GetSessionExpiry()),
		sessions.WithRenewThreshold(cfg.GetSessionRenewThreshold()))
	if err != nil {
		return nil, err
	}
	resets, err := passwordreset.NewManager(repos.ResetSessions, passwordreset.WithExpiry(cfg.GetPasswordResetExpiry()))
	if err != nil {
		return nil, err
	}
	verifications, err := emailverification.NewManager(repos.EmailVerifications, emailverification.WithExpiry(cfg.GetEmailVerificationExpiry()))
	if err != nil {
		return nil, err
	}
	registry, err := credentials.NewRegistry(repos.Credentials, envelope, credentials.WithMaxWebAuthn(cfg.GetMaxWebAuthnCredentials()))
	if err != nil {
		return nil, err
	}
	challenges := challenge.NewStore(challenge.WithTTL(challengeTTL))
	verifier, err := webauthn.NewVerifier(cfg.GetRPID(), cfg.GetOrigin(), challenges, registry)
	if err != nil {
		return nil, err
	}
	recorder, err := audit.NewRecorder(repos.Audit)
	if err != nil {
		return nil, err
	}
	mailer, err := newMailer(cfg, settingsManager)
	if err != nil {
		return nil, err
	}

	limiters := ratelimit.NewLimiters()
	m := metrics.New()
	service, err := auth.NewService(auth.Dependencies{
		Store:         st,
		Envelope:      envelope,
		Limiters:      limiters,
		Challenges:    challenges,
		Sessions:      sessionManager,
		Resets:        resets,
		Verifications: verifications,
		Credentials:   registry,
		WebAuthn:      verifier,
		Mailer:        mailer,
		Audit:         recorder,
		Settings:      settingsManager,
	}, auth.WithMetrics(m), auth.WithAppName(cfg.GetAppName()))
	if err != nil {
		return nil, err
	}

	providers, err := federation.NewRegistry(settingsManager.Snapshot, cfg.GetBaseURL())
	if err != nil {
		return nil, err
	}
	state, err := federation.NewStateCodec(stateSecret(cfg))
	if err != nil {
		return nil, err
	}

	srv, err := server.New(server.Dependencies{
		Config:     loader.Config,
		Auth:       service,
		Sessions:   sessionManager,
		Limiters:   limiters,
		Metrics:    m,
		Store:      st,
		Federation: providers,
		State:      state,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		loader:     loader,
		store:      st,
		settings:   settingsManager,
		limiters:   limiters,
		challenges: challenges,
		server:     srv,
	}, nil
}

// keySource reads the encryption key from Vault when an address is configured
// and from the environment otherwise.
func keySource(cfg config.Config) (encryption.KeySource, error) {
	v := cfg.GetVault()
	if v.Address == "" {
		return encryption.EnvKeySource{Var: cfg.GetEncryptionKeyEnvVar()}, nil
	}
	return encryption.NewVaultKeySource(v.Address, v.Token, v.Mount, v.Path, v.Field)
}

// openStore connects to Postgres and migrates it. Without a database URL DEV
// runs on the in-memory store.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	dsn := cfg.GetDatabaseURL()
	if dsn == "" {
		if cfg.IsProduction() {
			return nil, errors.New("[openStore] database_url is required in PROD")
		}
		log.Warn().Msg("no database_url, using the in-memory store")
		return memstore.New(), nil
	}
	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newMailer(cfg config.Config, settingsManager *settings.Manager) (mail.Mailer, error) {
	smtpConfig := func() settings.SMTP { return settingsManager.Snapshot().SMTP }
	smtpMailer, err := mail.NewSMTPMailer(smtpConfig)
	if err != nil {
		return nil, err
	}
	var next mail.Mailer = smtpMailer
	if !cfg.IsProduction() {
		if next, err = mail.NewLogUntilConfigured(smtpConfig, smtpMailer); err != nil {
			return nil, err
		}
	}
	return mail.NewThrottled(next, cfg.GetMailPerMinute()), nil
}

// stateSecret returns the configured OAuth state secret. DEV without one gets a
// random secret, which invalidates in-flight logins on restart.
func stateSecret(cfg config.Config) []byte {
	if secret := cfg.GetStateSecret(); secret != "" {
		return []byte(secret)
	}
	log.Warn().Msg("no state_secret, using a random one")
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)
	return secret
}

// startWorkers runs the periodic sweeps until ctx is done.
func (a *app) startWorkers(ctx context.Context, interval time.Duration) {
	a.limiters.StartCleanup(ctx, interval)

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := a.challenges.Sweep(); n > 0 {
					log.Debug().Int("removed", n).Msg("challenge sweep")
				}
				n, err := a.store.PurgeExpired(ctx, time.Now())
				if err != nil {
					log.Err(err).Msg("purge of expired rows failed")
					continue
				}
				if n > 0 {
					log.Debug().Int("removed", n).Msg("expired rows purged")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// reloadOnHangup re-reads the configuration and settings on SIGHUP.
func (a *app) reloadOnHangup(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := a.loader.Reload(); err != nil {
				log.Err(err).Msg("config reload failed, keeping the previous config")
				continue
			}
			cfg := a.loader.Config()
			logging.Setup(cfg.GetEnv(), cfg.GetLogLevel())
			if err := a.settings.Reload(ctx); err != nil {
				log.Err(err).Msg("settings reload failed")
			}
			if err := a.server.InitialiseSystem(ctx, cfg); err != nil {
				log.Err(err).Msg("admin promotion failed")
			}
			log.Info().Msg("configuration reloaded")
		}
	}
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "[shutdown] graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
	return nil
}
