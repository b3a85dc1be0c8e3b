package main

import (
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/config"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/database"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig := config.Read(viper.GetViper())
			if err := appConfig.ValidateDatabase(); err != nil {
				return err
			}
			logger, err := logging.NewLogger(appConfig.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := database.Open(database.Config{
				Driver: appConfig.DatabaseDriver,
				DSN:    appConfig.DatabaseDSN,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}
}

func newIssueTokenCommand() *cobra.Command {
	var wallet string
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Print a session token for a wallet address (development only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig := config.Read(viper.GetViper())
			if err := appConfig.ValidateSession(); err != nil {
				return err
			}
			address, err := users.NormalizeAddress(wallet)
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.SessionSigningSecret),
				Issuer:        appConfig.SessionIssuer,
				TokenTTL:      appConfig.SessionTokenTTL,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.IssueSessionToken(address)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&wallet, "wallet", "", "Wallet address the session belongs to")
	_ = cmd.MarkFlagRequired("wallet")
	return cmd
}
