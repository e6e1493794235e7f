package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"taskquest/internal/application"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const shutdownTimeout = 15 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Config struct {
	Addr         string
	CORSOrigins  []string
	CookieSecure bool
}

type Server struct {
	cfg    Config
	app    *fiber.App
	svc    *application.Service
	db     Pinger
	log    application.Logger
	access *slog.Logger

	stopOnce sync.Once
}

func NewServer(cfg Config, svc *application.Service, db Pinger, log application.Logger, access *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		db:     db,
		log:    log,
		access: access,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "TaskQuest API",
		ErrorHandler:          s.errorHandler,
		DisableStartupMessage: true,
	})
	s.app.Use(recover.New())

	origins := strings.Join(cfg.CORSOrigins, ",")
	if origins == "" {
		origins = "*"
	}
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: origins != "*",
	}))
	s.app.Use(LoggingMiddleware(access))

	s.routes()
	return s
}

func (s *Server) Name() string { return "http" }

func (s *Server) Init() error {
	if s.cfg.Addr == "" {
		return fmt.Errorf("http listen address is empty")
	}
	return nil
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening on %s", s.cfg.Addr)
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			s.log.Error("http shutdown: %v", err)
		}
	})
}

// errorHandler catches errors that escape handlers, mostly fiber's own 404/405.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	if e, ok := err.(*fiber.Error); ok {
		return sendError(c, e.Code, statusCode(e.Code), e.Message)
	}
	s.log.Error("unhandled error on %s %s: %v", c.Method(), c.Path(), err)
	return sendError(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal Server Error")
}
