package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tubelens/tubecache/types"
	"github.com/tubelens/tubecache/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const defaultShutdownTimeout = 5 * time.Second

// metricsExposer is implemented by backends that serve their own exposition
// format. Other backends fall back to the JSON export.
type metricsExposer interface {
	MetricsHandler() fasthttp.RequestHandler
}

// DebugServer exposes cache statistics and metrics over HTTP for operators.
// It serves GET /stats, GET /metrics and GET /health.
type DebugServer struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	config          *types.ServerConfig
	orchestrator    types.CacheOrchestrator
	metrics         types.MetricsManager
	server          *fasthttp.Server
	listener        net.Listener
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewDebugServer(ctx context.Context, logger types.Logger, config *types.ServerConfig, orchestrator types.CacheOrchestrator, metrics types.MetricsManager) (*DebugServer, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	serverCtx, cancel := context.WithCancel(ctx)

	server := &DebugServer{
		ctx:             serverCtx,
		cancel:          cancel,
		logger:          logger,
		config:          config,
		orchestrator:    orchestrator,
		metrics:         metrics,
		shutdownTimeout: defaultShutdownTimeout,
	}

	if config.ShutdownTimeout > 0 {
		server.shutdownTimeout = time.Duration(config.ShutdownTimeout) * time.Second
	}

	server.state.Store(StateStopped)

	return server, nil
}

func (d *DebugServer) Start() error {
	if !d.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if d.getState() == StateStarting {
			d.setState(StateRunning)
		}
	}()

	d.server = &fasthttp.Server{
		Handler:      d.handleRequest,
		ReadTimeout:  time.Duration(d.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(d.config.WriteTimeout) * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", d.config.Host, d.config.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		d.setState(StateStopped)
		return types.WrapError(err, "failed to bind debug server listener")
	}
	d.listener = listener

	go func() {
		if err := d.server.Serve(d.listener); err != nil {
			if d.getState() == StateRunning {
				d.logger.Error("Debug server failed", zap.Error(err))
				d.setState(StateStopped)
			}
		}
	}()

	d.logger.Info("Debug server started", zap.String("address", addr))
	return nil
}

func (d *DebugServer) Stop() error {
	if !d.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		d.setState(StateStopped)
		d.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.shutdownTimeout)
	defer cancel()

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		if d.server != nil {
			return d.server.ShutdownWithContext(ctx)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		d.logger.Error("Debug server shutdown failed", zap.Error(err))
		return err
	}

	d.logger.Info("Debug server stopped gracefully")
	return nil
}

func (d *DebugServer) IsRunning() bool {
	return d.getState() == StateRunning
}

// Addr reports the bound listener address, useful when the configured port
// is 0.
func (d *DebugServer) Addr() string {
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

func (d *DebugServer) handleRequest(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() {
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}

	switch string(ctx.Path()) {
	case "/stats":
		d.handleStats(ctx)
	case "/metrics":
		d.handleMetrics(ctx)
	case "/health":
		d.handleHealth(ctx)
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
	}
}

func (d *DebugServer) handleStats(ctx *fasthttp.RequestCtx) {
	stats := d.orchestrator.Stats()

	data, err := utils.Marshal(stats)
	if err != nil {
		d.logger.Error("Failed to encode cache stats", zap.Error(err))
		ctx.Error("internal error", fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(data)
}

func (d *DebugServer) handleMetrics(ctx *fasthttp.RequestCtx) {
	if d.metrics == nil {
		ctx.Error("metrics disabled", fasthttp.StatusNotFound)
		return
	}

	if exposer, ok := d.metrics.(metricsExposer); ok {
		exposer.MetricsHandler()(ctx)
		return
	}

	data, err := d.metrics.GetMetrics()
	if err != nil {
		d.logger.Error("Failed to export metrics", zap.Error(err))
		ctx.Error("internal error", fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(data)
}

func (d *DebugServer) handleHealth(ctx *fasthttp.RequestCtx) {
	status := "ok"
	code := fasthttp.StatusOK

	if !d.orchestrator.IsRunning() {
		status = "degraded"
		code = fasthttp.StatusServiceUnavailable
	}

	ctx.SetStatusCode(code)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBodyString(fmt.Sprintf(`{"status":%q}`, status))
}

func (d *DebugServer) getState() State {
	return d.state.Load().(State)
}

func (d *DebugServer) setState(newState State) bool {
	currentState := d.getState()
	return d.state.CompareAndSwap(currentState, newState)
}

func (d *DebugServer) transitionState(from, to State) bool {
	return d.state.CompareAndSwap(from, to)
}
