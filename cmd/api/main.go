package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fjod/go_pharmacy/internal/auth"
	"github.com/fjod/go_pharmacy/internal/catalog"
	"github.com/fjod/go_pharmacy/internal/chat"
	"github.com/fjod/go_pharmacy/internal/config"
	"github.com/fjod/go_pharmacy/internal/docstore"
	"github.com/fjod/go_pharmacy/internal/events"
	h "github.com/fjod/go_pharmacy/internal/http"
	"github.com/fjod/go_pharmacy/internal/logger"
	"github.com/fjod/go_pharmacy/internal/payment"
	"github.com/fjod/go_pharmacy/internal/session"
	"github.com/fjod/go_pharmacy/internal/telemetry"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint, cfg.TraceRatio)
	if err != nil {
		return err
	}

	secrets := config.NewSecretResolver()
	defer secrets.Close()

	docs, err := docstore.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	log.Info("document store ready", zap.String("driver", cfg.Store.Driver))

	var cache catalog.Cache = catalog.NoCache{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		cache = catalog.NewRedisCache(rdb, cfg.CatalogTTL)
	}
	medicines := catalog.New(docs, cache, log.Named("catalog"))

	gateway, confirmer := buildGateway(cfg, secrets, log)

	var orderEvents session.OrderEvents
	if len(cfg.KafkaBrokers) > 0 {
		pub := events.NewPublisher(cfg.OrderPlacedTopic, cfg.KafkaBrokers...)
		defer pub.Close()
		orderEvents = pub
	}

	sessions := session.NewManager(session.Deps{
		Docs:         docs,
		Gateway:      gateway,
		Confirmer:    confirmer,
		Events:       orderEvents,
		Currency:     cfg.Currency,
		WriteTimeout: cfg.CartWriteTimeout,
		Log:          log.Named("session"),
	}, cfg.SessionIdleTTL)

	verifier, provider, err := buildAuth(ctx, cfg, secrets)
	if err != nil {
		return err
	}

	gemini := chat.NewGemini(secrets.Func(cfg.GeminiAPIKey), cfg.GeminiModel)
	defer gemini.Close()
	relay := chat.NewRelay(gemini, cfg.ChatMaxTurns, cfg.SessionIdleTTL)

	notifier := auth.NewNotifier()
	notifier.Subscribe(sessions.HandleAuthEvent)
	notifier.Subscribe(func(_ context.Context, ev auth.Event) {
		if ev.Kind == auth.SignedOut {
			relay.Forget("user:" + ev.Identity.UID)
		}
	})

	router := h.NewRouter(h.RouterDeps{
		Log:                log.Named("http"),
		Verifier:           verifier,
		Provider:           auth.Notifying(provider, notifier),
		Sessions:           sessions,
		Catalog:            medicines,
		Docs:               docs,
		Gateway:            gateway,
		Chat:               relay,
		AllowedOrigins:     cfg.AllowedOrigins,
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		RelayConcurrency:   cfg.ChatConcurrency,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, cfg.ServiceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("storefront API starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	sessions.Close()
	if err := docs.Close(shutdownCtx); err != nil {
		log.Warn("document store close failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracer shutdown failed", zap.Error(err))
	}

	log.Info("server exited")
	return nil
}

// buildGateway picks Stripe when a key is configured, a remote relay when
// its URL is set, and the sandbox otherwise. A nil confirmer lets the
// orchestrator ask the gateway itself.
func buildGateway(cfg *config.Config, secrets *config.SecretResolver, log *zap.Logger) (payment.Gateway, payment.Confirmer) {
	breaker := payment.BreakerSettings{Name: "payment", CallTimeout: cfg.GatewayTimeout}

	switch {
	case cfg.StripeSecretKey != "":
		log.Info("payment gateway: stripe")
		stripe := payment.NewStripeGateway(payment.StripeConfig{
			SecretKey:  secrets.Func(cfg.StripeSecretKey),
			Currency:   cfg.Currency,
			SuccessURL: cfg.PublicURL + "/success?session_id={CHECKOUT_SESSION_ID}",
			CancelURL:  cfg.PublicURL + "/cancel",
		})
		return payment.NewBreaker(stripe, breaker, log), nil
	case cfg.PaymentRelayURL != "":
		log.Info("payment gateway: remote relay", zap.String("url", cfg.PaymentRelayURL))
		proxy := payment.NewProxyClient(cfg.PaymentRelayURL, cfg.GatewayTimeout)
		return payment.NewBreaker(proxy, breaker, log), payment.ClientReported{}
	default:
		log.Warn("payment gateway: sandbox, no payments are taken",
			zap.Int("success_percent", cfg.SandboxSuccessPercent))
		return payment.NewSandbox(cfg.PublicURL+"/success", payment.NewOutcome(cfg.SandboxSuccessPercent)), nil
	}
}

func buildAuth(ctx context.Context, cfg *config.Config, secrets *config.SecretResolver) (auth.Verifier, auth.Provider, error) {
	switch cfg.AuthMode {
	case "firebase":
		client, err := auth.NewFirebaseAuthClient(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredFile)
		if err != nil {
			return nil, nil, err
		}
		fb := auth.NewFirebase(client, secrets.Func(cfg.FirebaseWebAPIKey))
		return fb, fb, nil
	case "dev", "":
		dev := auth.NewDev()
		return dev, dev, nil
	}
	return nil, nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
}
