package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/logging"
	"github.com/layer-3/walletauth/adapters/realtime"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/adapters/tokens"
	"github.com/layer-3/walletauth/adapters/verifier"
	"github.com/layer-3/walletauth/config"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/service"
	transport "github.com/layer-3/walletauth/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("walletauth: %v", err)
	}
}

func run() error {
	// A missing .env is fine
	_ = godotenv.Load()

	configPath := os.Getenv("APP_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		primary     store.PrimaryBackend
		redisClient *redis.Client
	)
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		// Socket reads honour the request deadline
		opts.ContextTimeoutEnabled = true
		redisClient = redis.NewClient(opts)
		primary = store.NewRedisStore(redisClient)
	}

	sessions := store.NewFailoverStore(ctx, primary, store.NewMemoryStore(time.Minute), store.Options{
		TTL:             cfg.Session.TTL,
		ConnectAttempts: cfg.Redis.ConnectAttempts,
		BackoffStep:     cfg.Redis.BackoffStep,
		BackoffMax:      cfg.Redis.BackoffMax,
		PrimaryTimeout:  cfg.Redis.OpTimeout,
	}, logger.Named("store"))
	defer func() {
		if err := sessions.Close(); err != nil {
			logger.Warn("failed to close session store", zap.Error(err))
		}
	}()

	wmLogger := logging.NewWatermillLogger(logger.Named("events"))
	publisher, subscriber, err := newPubSub(cfg, sessions, redisClient, wmLogger)
	if err != nil {
		return err
	}

	hub := realtime.NewHub(logger.Named("realtime"))

	eventRouter, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return fmt.Errorf("create event router: %w", err)
	}
	realtime.NewRelay(hub, logger.Named("relay")).Register(eventRouter, subscriber, cfg.Events.Topic)

	signKey, err := loadSigningKey(cfg.Auth.SigningKeyPEM)
	if err != nil {
		return err
	}
	if cfg.Auth.SigningKeyPEM == "" {
		logger.Warn("no signing key configured, session tokens will not survive a restart")
	}

	var notifier ports.SessionNotifier = events.NewWatermillNotifier(publisher, cfg.Events.Topic)
	if _, stream := publisher.(*redisstream.Publisher); stream {
		// Once the store has given up on redis, events go straight to local sockets
		notifier = events.NewFallbackNotifier(notifier, hub, sessions.UsingPrimary)
	}

	authService := service.NewAuthService(
		sessions,
		verifier.NewEthVerifier(),
		tokens.NewRandomSource(),
		service.WithNotifier(notifier),
		service.WithTokenizer(tokenizer.NewJWTTokenizer(signKey, cfg.Session.TTL)),
		service.WithLogger(logger.Named("auth")),
	)

	gateway := realtime.NewGateway(hub, realtime.GatewayConfig{
		OriginPatterns: cfg.Realtime.OriginPatterns,
		SendQueue:      cfg.Realtime.SendQueue,
	}, logger.Named("gateway"))

	gin.SetMode(gin.ReleaseMode)
	router := transport.SetupRouter(authService, gateway, transport.RouterConfig{
		DeepLinkScheme: cfg.DeepLink.Scheme,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		AdminEnabled:   cfg.Admin.Enabled,
		Logger:         logger.Named("http"),
	})

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: cors.New(cors.Options{
			AllowedOrigins: cfg.HTTP.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}).Handler(router),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		if err := eventRouter.Run(ctx); err != nil {
			errCh <- fmt.Errorf("event router: %w", err)
		}
	}()
	select {
	case <-eventRouter.Running():
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr), zap.Bool("primary_store", sessions.UsingPrimary()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.Error("server failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := eventRouter.Close(); err != nil {
		logger.Warn("event router shutdown", zap.Error(err))
	}
	if err := publisher.Close(); err != nil {
		logger.Warn("event publisher shutdown", zap.Error(err))
	}

	return runErr
}

// newPubSub picks the event backend. Redis streams fan events out to every
// instance, and are only used while the session store is on redis.
func newPubSub(cfg config.Config, sessions *store.FailoverStore, client *redis.Client, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	if cfg.Events.Backend == config.EventsRedisStream && client != nil && sessions.UsingPrimary() {
		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create redis stream publisher: %w", err)
		}
		// No consumer group: every instance reads every event for its own sockets
		subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{Client: client}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create redis stream subscriber: %w", err)
		}
		return publisher, subscriber, nil
	}

	if cfg.Events.Backend == config.EventsRedisStream {
		logger.Info("redis unavailable, events stay in process", nil)
	}
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
	return pubSub, pubSub, nil
}

func loadSigningKey(pemKey string) (*ecdsa.PrivateKey, error) {
	if pemKey == "" {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		return key, nil
	}

	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return key, nil
}
