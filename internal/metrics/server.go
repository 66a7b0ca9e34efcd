package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/hotswap/internal/errors"
	"github.com/Iron-Ham/hotswap/internal/logging"
)

// maxGoroutines fails the liveness check when exceeded.
const maxGoroutines = 10_000

// Server serves /metrics, /live and /ready.
type Server struct {
	addr   string
	srv    *http.Server
	logger *logging.Logger

	wg       conc.WaitGroup
	listener net.Listener
}

// NewServer builds the HTTP handler tree. ready backs the readiness check;
// nil means always ready.
func NewServer(addr string, m *Metrics, ready func() error, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if ready == nil {
		ready = func() error { return nil }
	}

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	health.AddReadinessCheck("worker", ready)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/live", health.LiveEndpoint)
	mux.HandleFunc("/ready", health.ReadyEndpoint)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.WithComponent("metrics"),
	}
}

// Handler returns the endpoint mux.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.addr)
	}
	s.listener = ln
	s.logger.Info("serving metrics", "addr", ln.Addr().String())

	s.wg.Go(func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "error", err.Error())
		}
	})
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown stops the server and waits for the serve goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	s.wg.Wait()
	return err
}
