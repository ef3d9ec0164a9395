package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/connectify/apiserver/config"
	"github.com/connectify/apiserver/internal/db"
	"github.com/connectify/apiserver/internal/directory"
	"github.com/connectify/apiserver/internal/handlers"
	"github.com/connectify/apiserver/internal/logging"
	"github.com/connectify/apiserver/internal/mail"
	"github.com/connectify/apiserver/internal/mq"
	"github.com/connectify/apiserver/internal/services"
	"github.com/connectify/apiserver/internal/storage"
	"github.com/connectify/apiserver/internal/store"
	"github.com/connectify/apiserver/internal/store/memory"
	"github.com/connectify/apiserver/internal/stream"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        logrus.FieldLogger
	closers    []func() error
	stop       chan struct{}
}

type repositories struct {
	users    services.UserRepository
	requests services.FriendRequestRepository
	tx       services.TxFunc
}

// New constructs a Server with its dependencies, middleware and routes.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	return NewWithLogger(ctx, cfg, logging.New(cfg.Log))
}

func NewWithLogger(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*Server, error) {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	s := &Server{log: log, stop: make(chan struct{})}
	ok := false
	defer func() {
		if !ok {
			s.close()
		}
	}()

	repos, err := s.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mailer, err := newMailer(cfg.Mail, log)
	if err != nil {
		return nil, err
	}

	chat, err := newChatClient(cfg.Stream, log)
	if err != nil {
		return nil, err
	}

	directorySync, err := s.newDirectorySync(ctx, cfg, chat)
	if err != nil {
		return nil, err
	}

	avatars := newAvatarStorage(ctx, cfg.Storage, log)

	authService := services.NewAuthService(repos.users, mailer, directorySync, log,
		services.WithDirectoryTimeout(cfg.Directory.Timeout))
	friendshipService := services.NewFriendshipService(repos.users, repos.requests, repos.tx, log)
	var avatarStore services.AvatarStorage
	if avatars != nil {
		avatarStore = avatars
	}
	profileService := services.NewProfileService(repos.users, avatarStore, directorySync, cfg.Storage.PresignExpiry, log)
	supportService := services.NewSupportService(mailer, cfg.Mail.SupportReceiver, log)

	var tokenIssuer handlers.TokenIssuer
	if chat != nil {
		tokenIssuer = chat
	}

	metrics := handlers.NewMetrics()
	otpLimiter := handlers.NewRateLimiter(cfg.RateLimit.OTPPerMinute, cfg.RateLimit.OTPBurst, log)
	otpLimiter.StartCleanup(time.Minute, s.stop)
	supportLimiter := handlers.NewRateLimiter(cfg.RateLimit.OTPPerMinute, cfg.RateLimit.OTPBurst, log)
	supportLimiter.StartCleanup(time.Minute, s.stop)
	authMiddleware := handlers.RequireAuth(cfg.Auth)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		metrics.Middleware,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authService, cfg.Auth, otpLimiter.Handler, log)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, friendshipService, profileService, metrics, authMiddleware, log)
	})
	router.Route("/chat", func(r chi.Router) {
		handlers.ChatRouter(r, tokenIssuer, authMiddleware, log)
	})
	router.Route("/uploads", func(r chi.Router) {
		handlers.UploadRouter(r, profileService, authMiddleware, log)
	})
	router.Route("/support", func(r chi.Router) {
		handlers.SupportRouter(r, supportService, supportLimiter.Handler, log)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	ok = true
	return s, nil
}

func (s *Server) openStore(ctx context.Context, cfg config.Config) (repositories, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreDriver)) {
	case "memory":
		s.log.Warn("using in-memory store, data is lost on restart")
		mem := memory.New()
		return repositories{users: mem.Users(), requests: mem.FriendRequests(), tx: mem.Tx}, nil
	case "", "postgres":
		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return repositories{}, err
		}
		s.closers = append(s.closers, dbConn.Close)

		tx := func(ctx context.Context, fn func(ctx context.Context, users services.UserRepository, requests services.FriendRequestRepository) error) error {
			return db.WithTx(ctx, dbConn, nil, func(ctx context.Context, tx db.DBTX) error {
				return fn(ctx, store.NewUserRepository(tx), store.NewFriendRequestRepository(tx))
			})
		}
		return repositories{
			users:    store.NewUserRepository(dbConn),
			requests: store.NewFriendRequestRepository(dbConn),
			tx:       tx,
		}, nil
	default:
		return repositories{}, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func newMailer(cfg config.MailConfig, log logrus.FieldLogger) (services.Mailer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "brevo":
		return mail.NewBrevoClient(cfg)
	case "", "log":
		return mail.NewLogMailer(log), nil
	default:
		return nil, fmt.Errorf("unsupported mail backend %q", cfg.Backend)
	}
}

// newChatClient returns nil when no credentials are configured.
func newChatClient(cfg config.StreamConfig, log logrus.FieldLogger) (*stream.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" && strings.TrimSpace(cfg.APISecret) == "" {
		log.Warn("stream credentials not set, chat tokens and directory sync are disabled")
		return nil, nil
	}
	return stream.NewClient(cfg)
}

func (s *Server) newDirectorySync(ctx context.Context, cfg config.Config, chat *stream.Client) (services.DirectorySync, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Directory.Mode)) {
	case "none":
		return nil, nil
	case "", "direct":
		if chat == nil {
			return nil, nil
		}
		return chat, nil
	case "queue":
		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, queue.Close)
		return directory.NewPublisher(queue, cfg.Directory.Channel), nil
	default:
		return nil, fmt.Errorf("unsupported directory sync mode %q", cfg.Directory.Mode)
	}
}

// newAvatarStorage returns nil when storage is disabled or unreachable;
// avatar uploads are then refused while the rest of the API keeps working.
func newAvatarStorage(ctx context.Context, cfg config.StorageConfig, log logrus.FieldLogger) *storage.Storage {
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), "none") {
		return nil
	}
	objects, err := storage.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("object storage unavailable, avatar uploads are disabled")
		return nil
	}

	ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := objects.EnsureBucket(ensureCtx); err != nil {
		log.WithError(err).WithField("bucket", objects.Bucket()).Warn("failed to ensure bucket")
	}
	return objects
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases every dependency.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.WithError(err).Warn("failed to close dependency")
		}
	}
	s.closers = nil
}
