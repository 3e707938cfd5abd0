package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/Nyenzo/tule-initiative/internal/auth"
	"github.com/Nyenzo/tule-initiative/internal/db/bunx"
	"github.com/Nyenzo/tule-initiative/internal/docstore"
	"github.com/Nyenzo/tule-initiative/internal/idp"
	"github.com/Nyenzo/tule-initiative/internal/repository"
	"github.com/Nyenzo/tule-initiative/internal/server"
	"github.com/Nyenzo/tule-initiative/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Tule Initiative API server",
	Long:  `Starts the HTTP server with identity, profile, and role-administration endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		shutdownTelemetry, err := telemetry.Init(cmd.Context(), cfg.Observability)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(ctx); err != nil {
				log.Printf("WARNING: telemetry shutdown failed: %v", err)
			}
		}()

		// Connect to database
		db, err := bunx.NewDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		log.Printf("INFO: connected to database")

		key, err := auth.LoadOrCreateSigningKey(cfg.Auth.SigningKeyPath)
		if err != nil {
			return fmt.Errorf("failed to load signing key: %w", err)
		}
		signer := auth.NewSigner(key, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.AccessTokenTTL)

		provider, err := idp.NewProvider(idp.Options{
			Accounts:      repository.NewBunAccountRepository(db),
			RefreshTokens: repository.NewBunRefreshTokenRepository(db),
			Signer:        signer,
			JWKS:          auth.JWKS(key, signer.KeyID()),
			RefreshTTL:    cfg.Auth.RefreshTokenTTL,
			BcryptCost:    cfg.Auth.BcryptCost,
		})
		if err != nil {
			return fmt.Errorf("failed to create identity provider: %w", err)
		}
		defer provider.Close()

		enforcer, err := auth.InitEnforcer()
		if err != nil {
			return fmt.Errorf("failed to configure enforcer: %w", err)
		}

		store := docstore.NewBunStore(repository.NewBunDocumentRepository(db))

		r := server.NewRouter(server.RouterOptions{
			Provider: provider,
			Store:    store,
			Enforcer: enforcer,
			Debug:    cfg.Debug,
		})

		// h2c so clients can speak HTTP/2 without TLS behind a terminating proxy.
		h2cHandler := h2c.NewHandler(r, &http2.Server{})

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      h2cHandler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Printf("INFO: starting server on %s", cfg.ServerAddr)
			log.Printf("INFO: server URL: %s", cfg.ServerURL)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			log.Printf("INFO: received signal %v, shutting down gracefully", sig)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			log.Printf("INFO: server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
