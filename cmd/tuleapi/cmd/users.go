package cmd

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nyenzo/tule-initiative/internal/auth"
	"github.com/Nyenzo/tule-initiative/internal/db/bunx"
	"github.com/Nyenzo/tule-initiative/internal/idp"
	"github.com/Nyenzo/tule-initiative/internal/repository"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "User management commands",
	Long:  `Commands for managing user accounts directly against the database.`,
}

var (
	createEmail    string
	createPassword string
	createName     string
)

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, cleanup, err := directProvider()
		if err != nil {
			return err
		}
		defer cleanup()

		account, _, err := provider.SignUp(cmd.Context(), createEmail, createPassword, createName)
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		log.Printf("Created user %s (%s)", account.Email, account.ID)
		return nil
	},
}

// grant-admin writes the admin claim directly, bypassing the API's caller
// check. Anyone who can run this already has the database, so it is the
// bootstrap path for the first admin; later grants should go through the
// API so they are attributed to a caller.
var usersGrantAdminCmd = &cobra.Command{
	Use:   "grant-admin <email>",
	Short: "Grant the admin role to a user by email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := args[0]

		provider, cleanup, err := directProvider()
		if err != nil {
			return err
		}
		defer cleanup()

		account, err := provider.FindUserByEmail(cmd.Context(), email)
		if err != nil {
			return fmt.Errorf("failed to find user: %w", err)
		}

		if err := provider.SetCustomClaims(cmd.Context(), account.ID, map[string]any{auth.AdminClaimKey: true}); err != nil {
			return fmt.Errorf("failed to set admin claim: %w", err)
		}

		log.Printf("Success! %s is now an admin.", email)
		return nil
	},
}

// directProvider builds an identity provider straight on the database for
// offline administration. Tokens minted here are throwaway: the ephemeral
// key is never published, only the directory writes matter.
func directProvider() (*idp.Provider, func(), error) {
	db, err := bunx.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		_ = bunx.Close(db)
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}
	signer := auth.NewSigner(key, cfg.Auth.Issuer, cfg.Auth.Audience, time.Minute)

	provider, err := idp.NewProvider(idp.Options{
		Accounts:      repository.NewBunAccountRepository(db),
		RefreshTokens: repository.NewBunRefreshTokenRepository(db),
		Signer:        signer,
		JWKS:          auth.JWKS(key, signer.KeyID()),
		RefreshTTL:    cfg.Auth.RefreshTokenTTL,
		BcryptCost:    cfg.Auth.BcryptCost,
	})
	if err != nil {
		_ = bunx.Close(db)
		return nil, nil, fmt.Errorf("failed to create identity provider: %w", err)
	}

	cleanup := func() {
		provider.Close()
		_ = bunx.Close(db)
	}
	return provider, cleanup, nil
}

func init() {
	usersCreateCmd.Flags().StringVar(&createEmail, "email", "", "Email address (required)")
	usersCreateCmd.Flags().StringVar(&createPassword, "password", "", "Password (required)")
	usersCreateCmd.Flags().StringVar(&createName, "name", "", "Display name")
	_ = usersCreateCmd.MarkFlagRequired("email")
	_ = usersCreateCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersCreateCmd)
	usersCmd.AddCommand(usersGrantAdminCmd)
}
