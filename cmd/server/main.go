package main

import (
	"fmt"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-auth-hub/encryption"
	"github.com/jrsteele09/go-auth-hub/internal/config"
	"github.com/jrsteele09/go-auth-hub/internal/logging"
	"github.com/jrsteele09/go-auth-hub/store/postgres"
)

var configPath string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Err(err).Msg("authhub failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "authhub",
		Short:         "Session, second factor and recovery service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.GetEnv("AUTHHUB_CONFIG", ""), "path to a config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server (default)",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations",
			RunE:  runMigrate,
		},
		&cobra.Command{
			Use:   "keygen",
			Short: "Print a fresh base64 encryption key",
			RunE:  runKeygen,
		},
	)
	return root
}

// loadConfig reads the configuration and sets up logging from it.
func loadConfig() (*config.Loader, error) {
	loader, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg := loader.Config()
	logging.Setup(cfg.GetEnv(), cfg.GetLogLevel())
	return loader, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	loader, err := loadConfig()
	if err != nil {
		return err
	}
	dsn := loader.Config().GetDatabaseURL()
	if dsn == "" {
		return fmt.Errorf("[migrate] database_url is not set")
	}
	db, err := postgres.Open(cmd.Context(), dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(cmd.Context()); err != nil {
		return err
	}
	log.Info().Msg("migrations applied")
	return nil
}

func runKeygen(cmd *cobra.Command, _ []string) error {
	key, err := encryption.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
