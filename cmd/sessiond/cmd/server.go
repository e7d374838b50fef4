package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"sessioncore/activity"
	"sessioncore/api"
	"sessioncore/auth"
	"sessioncore/csrf"
	"sessioncore/identity"
	"sessioncore/identity/local"
	"sessioncore/identity/oidc"
	"sessioncore/internal/util"
	"sessioncore/session"
	bboltstorage "sessioncore/storage/bbolt"
)

var (
	port             int
	dataDir          string
	tlsCert          string
	tlsKey           string
	idleTimeout      time.Duration
	oidcIssuer       string
	oidcClientID     string
	oidcClientSecret string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the session service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(dataDir, "sessions.db"), nil)
		if err != nil {
			return fmt.Errorf("failed to open session storage: %w", err)
		}
		defer repo.Close()

		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		var (
			provider identity.Provider
			apiOpts  = []api.Option{api.WithLogger(logger)}
		)
		if oidcIssuer != "" {
			provider, err = oidc.NewProvider(cmd.Context(), oidc.Config{
				IssuerURL:    oidcIssuer,
				ClientID:     oidcClientID,
				ClientSecret: oidcClientSecret,
			})
			if err != nil {
				return fmt.Errorf("failed to configure OIDC provider: %w", err)
			}
		} else {
			signingKey, err := loadOrCreateSigningKey(filepath.Join(dataDir, "signing.key"))
			if err != nil {
				return fmt.Errorf("failed to load signing key: %w", err)
			}
			lp := local.NewProvider(repo, signingKey)
			lp.SetResetTokenSink(func(email, token string) {
				// No mail transport is wired in; operators read reset
				// tokens from the service log.
				logger.Info("password reset token issued", "email", email, "token", token)
			})
			provider = lp
			apiOpts = append(apiOpts, api.WithResetCompleter(lp))
		}

		bus := activity.NewBus()
		core := auth.New(provider, session.NewMetadataStore(repo), bus,
			auth.WithLogger(logger),
			auth.WithUserAgent("sessiond/"+Version),
			auth.WithInactivityTimeout(idleTimeout),
		)
		if err := core.Start(cmd.Context()); err != nil {
			return fmt.Errorf("failed to start session core: %w", err)
		}
		defer core.Close()

		a := api.New(core, bus, csrf.NewService(), apiOpts...)

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		var tlsConfig *tls.Config
		if tlsCert != "" && tlsKey != "" {
			cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		} else {
			cert, err := util.GenerateSelfSignedCert()
			if err != nil {
				return fmt.Errorf("failed to generate self-signed certificate: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
			fmt.Println("Using self-signed runtime generated certificate for TLS")
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d (data: %s)...\n", port, dataDir)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// loadOrCreateSigningKey reads the token signing key, minting and persisting
// a fresh one on first run. Rotating the key invalidates all outstanding
// session tokens, which is the desired behavior when it leaks.
func loadOrCreateSigningKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != 32 {
			return nil, fmt.Errorf("signing key %s has unexpected length %d", path, len(key))
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key, err = util.RandomBytes(32)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8443, "Port to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
	serverCmd.Flags().DurationVar(&idleTimeout, "idle-timeout", 30*time.Minute, "Inactivity window before a session is expired")
	serverCmd.Flags().StringVar(&oidcIssuer, "oidc-issuer", "", "OIDC issuer URL (uses the local provider when empty)")
	serverCmd.Flags().StringVar(&oidcClientID, "oidc-client-id", "", "OIDC client ID")
	serverCmd.Flags().StringVar(&oidcClientSecret, "oidc-client-secret", "", "OIDC client secret")
}
