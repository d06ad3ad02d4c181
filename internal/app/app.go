package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"mpconnect-go/internal/auth"
	"mpconnect-go/internal/config"
	"mpconnect-go/internal/mercadopago"
	"mpconnect-go/internal/profile"
	"mpconnect-go/internal/session"
	"mpconnect-go/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exchanger swaps an authorization code for Mercado Pago credentials.
type Exchanger interface {
	Exchange(ctx context.Context, code, redirectURI, codeVerifier string) (*mercadopago.TokenResponse, error)
}

// Application holds all the major components of the service.
type Application struct {
	Config        *config.Config
	Logger        *log.Logger
	DB            *storage.SQLiteStorage
	Profiles      profile.Store
	Sessions      session.Store
	PKCE          auth.PKCEStore
	Connect       *auth.ConnectManager
	Exchanger     Exchanger
	HttpServer    *http.Server
	MetricsServer *http.Server

	pkceCache     *auth.InMemoryPKCEStore
	cleanupCancel context.CancelFunc
}

// New creates and initializes a new Application instance.
func New(cfg *config.Config) (*Application, error) {
	logger := log.New(os.Stdout, "mpconnect: ", log.LstdFlags)

	// Setup: Database
	db, err := storage.NewSQLiteStorage(cfg.DB.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Setup: Profile and session collaborators
	profiles := storage.NewProfileStore(db, []byte(cfg.EncryptionKey))
	sessions := session.NewInMemoryStore()

	// Setup: PKCE store and authorization request builder. The redirect
	// URI is derived once here; the callback handler reads the same value
	// through the manager.
	pkceCache := auth.NewInMemoryPKCEStore()
	connect := auth.NewConnectManager(
		cfg.MercadoPago.AppID,
		cfg.MercadoPago.AuthorizationEndpoint,
		cfg.CallbackRedirectURI(),
		pkceCache,
		logger,
	)

	// Setup: Token exchange client
	exchanger := mercadopago.NewClient(
		cfg.MercadoPago.TokenEndpoint,
		cfg.MercadoPago.AppID,
		cfg.MercadoPago.AppSecret,
	)

	// Setup: HTTP server for metrics
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: metricsMux,
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		DB:            db,
		Profiles:      profiles,
		Sessions:      sessions,
		PKCE:          pkceCache,
		Connect:       connect,
		Exchanger:     exchanger,
		MetricsServer: metricsServer,
		pkceCache:     pkceCache,
	}

	// Setup: Main HTTP server
	app.HttpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: app.routes(),
	}

	return app, nil
}

// routes builds the HTTP handler tree.
func (a *Application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/login", a.handleLogin)
	mux.HandleFunc("/logout", a.handleLogout)

	mux.Handle("/connect", a.requireAuth(http.HandlerFunc(a.handleConnectPage)))
	mux.Handle("/api/mp/connect", a.requireAuthAPI(http.HandlerFunc(a.handleConnectStart)))
	mux.Handle("/api/mp/status", a.requireAuthAPI(http.HandlerFunc(a.handleConnectStatus)))
	mux.Handle("/api/mp/oauth/callback", a.requireAuthAPI(http.HandlerFunc(a.handleOAuthCallback)))

	mux.Handle("/", a.requireAuth(http.RedirectHandler("/connect", http.StatusTemporaryRedirect)))

	return mux
}

// Start begins the application's services.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.Println("Starting application services...")

	// Expire abandoned authorization attempts in the background.
	cleanupCtx, cancel := context.WithCancel(ctx)
	a.cleanupCancel = cancel
	a.pkceCache.StartCleanup(cleanupCtx, time.Minute)

	go func() {
		a.Logger.Printf("Starting metrics server on %s", a.MetricsServer.Addr)
		if err := a.MetricsServer.ListenAndServe(); err != http.ErrServerClosed {
			a.Logger.Fatalf("Metrics server ListenAndServe: %v", err)
		}
	}()

	go func() {
		a.Logger.Printf("Starting HTTP server on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != http.ErrServerClosed {
			a.Logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the application's services.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.Println("Stopping application services...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := a.HttpServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Printf("HTTP server shutdown error: %v", err)
	}
	if err := a.MetricsServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Printf("Metrics server shutdown error: %v", err)
	}

	if a.cleanupCancel != nil {
		a.cleanupCancel()
	}

	if err := a.DB.Close(); err != nil {
		a.Logger.Printf("Error closing database: %v", err)
	}

	a.Logger.Println("Application stopped gracefully.")
	return nil
}
