package service

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

type Logger interface {
	Error(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Info(format string, v ...interface{})
	Debug(format string, v ...interface{})
}

type (
	// Service is a long-running component. Run blocks until ctx is cancelled
	// or the component fails.
	Service interface {
		Name() string
		Init() error
		Run(ctx context.Context) error
		Stop()
	}
	Services interface {
		AddService(service ...Service)
		Run(ctx context.Context) error
	}
	Manager struct {
		log      Logger
		services []Service
	}
)

func NewManager(log Logger) Services {
	return &Manager{log: log}
}

func (s *Manager) AddService(service ...Service) {
	s.services = append(s.services, service...)
}

// Run initialises every service in order, then runs them concurrently.
// The first service to fail cancels the rest; all services are stopped
// before Run returns.
func (s *Manager) Run(ctx context.Context) error {
	s.log.Info("going to start %d services", len(s.services))
	for count, svc := range s.services {
		if err := svc.Init(); err != nil {
			for i := 0; i < count; i++ {
				s.services[i].Stop()
			}
			return err
		}
		s.log.Debug("service %s initialised", svc.Name())
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range s.services {
		svc := svc
		g.Go(func() error {
			err := svc.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("service %s failed: %v", svc.Name(), err)
				return err
			}
			return nil
		})
	}

	<-gctx.Done()
	s.stop()

	return g.Wait()
}

func (s *Manager) stop() {
	s.log.Info("going to stop")
	for i := len(s.services) - 1; i >= 0; i-- {
		s.services[i].Stop()
	}
}
