package tubecache

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tubelens/tubecache/cache"
	"github.com/tubelens/tubecache/config"
	"github.com/tubelens/tubecache/domain"
	"github.com/tubelens/tubecache/logger"
	"github.com/tubelens/tubecache/metrics"
	"github.com/tubelens/tubecache/server"
	"github.com/tubelens/tubecache/store"
	"github.com/tubelens/tubecache/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const serviceShutdownTimeout = 30 * time.Second

// Service wires configuration, logging, metrics, the durable store, the
// cache orchestrator, the typed repository and the debug server into one
// lifecycle. Components start in dependency order and stop in reverse.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger types.Logger
	config types.ConfigManager

	metrics      types.MetricsManager
	durable      types.DurableStore
	orchestrator types.CacheOrchestrator
	repository   *domain.CacheRepository
	debugServer  *server.DebugServer

	done  chan struct{}
	state atomic.Value
}

// NewService builds a service from a YAML config file.
func NewService(ctx context.Context, configPath string) (*Service, error) {
	if configPath == "" {
		return nil, types.ErrConfigInvalidPath
	}

	manager, err := config.NewConfigurationManager(configPath)
	if err != nil {
		return nil, err
	}

	return newService(ctx, manager)
}

// NewServiceFromConfig builds a service from an in-memory configuration,
// mainly for embedding and tests.
func NewServiceFromConfig(ctx context.Context, cfg *types.ServiceConfig) (*Service, error) {
	manager, err := config.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	return newService(ctx, manager)
}

func newService(ctx context.Context, configManager types.ConfigManager) (*Service, error) {
	cfg := configManager.GetConfig()

	log, err := logger.NewDefaultLogger(cfg.Logger)
	if err != nil {
		return nil, types.WrapError(err, "failed to build logger")
	}

	serviceCtx, cancel := context.WithCancel(ctx)

	service := &Service{
		ctx:    serviceCtx,
		cancel: cancel,
		logger: log,
		config: configManager,
		done:   make(chan struct{}),
	}
	service.state.Store(StateStopped)

	if err := service.buildComponents(cfg); err != nil {
		cancel()
		return nil, err
	}

	return service, nil
}

func (s *Service) buildComponents(cfg *types.ServiceConfig) error {
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		manager, err := metrics.NewMetricsManager(s.ctx, s.logger, cfg.Metrics)
		if err != nil {
			return types.WrapError(err, "failed to build metrics manager")
		}
		s.metrics = manager
	}

	if cfg.Store != nil && cfg.Store.Enabled {
		durable, err := store.NewDurableStore(s.ctx, s.logger, cfg.Store)
		if err != nil {
			return types.WrapError(err, "failed to build durable store")
		}
		s.durable = durable
	}

	orchestrator, err := cache.NewCacheOrchestrator(s.ctx, s.logger, s.metrics, cfg.Cache, cfg.Store, s.durable)
	if err != nil {
		return types.WrapError(err, "failed to build cache orchestrator")
	}
	s.orchestrator = orchestrator

	s.repository = domain.NewCacheRepository(s.logger, s.orchestrator)

	if cfg.Server != nil && cfg.Server.Enabled {
		debugServer, err := server.NewDebugServer(s.ctx, s.logger, cfg.Server, s.orchestrator, s.metrics)
		if err != nil {
			return types.WrapError(err, "failed to build debug server")
		}
		s.debugServer = debugServer
	}

	return nil
}

func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	started := make([]types.LifecycleManager, 0, 4)

	for _, component := range s.components() {
		if component == nil {
			continue
		}
		if err := component.Start(); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				if stopErr := started[i].Stop(); stopErr != nil {
					s.logger.Error("Failed to roll back component", zap.Error(stopErr))
				}
			}
			s.setState(StateStopped)
			return err
		}
		started = append(started, component)
	}

	s.setState(StateRunning)
	s.logger.Info("Service started",
		zap.String("name", s.config.GetConfig().Name),
		zap.String("version", s.config.GetConfig().Version))

	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrServiceIsNotRunning
	}

	defer func() {
		s.setState(StateStopped)
		s.cancel()
		close(s.done)
	}()

	components := s.components()

	var firstErr error
	for i := len(components) - 1; i >= 0; i-- {
		if components[i] == nil {
			continue
		}
		if err := components[i].Stop(); err != nil {
			s.logger.Error("Failed to stop component", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		return firstErr
	}

	s.logger.Info("Service stopped gracefully")
	return nil
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

// Run starts the service and blocks until SIGINT, SIGTERM or context
// cancellation, then shuts down with a bounded timeout.
func (s *Service) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		s.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-s.ctx.Done():
	}

	stopDone := make(chan error, 1)
	go func() {
		stopDone <- s.Stop()
	}()

	select {
	case err := <-stopDone:
		return err
	case <-time.After(serviceShutdownTimeout):
		s.logger.Warn("Service shutdown timed out")
		return types.NewErrorf("service shutdown timed out after %s", serviceShutdownTimeout)
	}
}

// Repository returns the typed cache facade.
func (s *Service) Repository() *domain.CacheRepository {
	return s.repository
}

// Orchestrator returns the underlying cache orchestrator for callers that
// need raw namespace access.
func (s *Service) Orchestrator() types.CacheOrchestrator {
	return s.orchestrator
}

func (s *Service) Logger() types.Logger {
	return s.logger
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

// components lists lifecycle-managed parts in start order. Stop walks the
// same list backwards.
func (s *Service) components() []types.LifecycleManager {
	components := make([]types.LifecycleManager, 0, 4)

	if s.metrics != nil {
		components = append(components, s.metrics)
	}
	if s.durable != nil {
		components = append(components, s.durable)
	}
	components = append(components, s.orchestrator)
	if s.debugServer != nil {
		components = append(components, s.debugServer)
	}

	return components
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
