package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

type HealthzServer struct {
	server   *http.Server
	listener net.Listener
	log      log.Logger
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return serve(ctx, addr, c.Handler(hdlr), &h.server, &h.listener, h.logger())
}

// Addr returns the bound address, useful when listening on port 0
func (h *HealthzServer) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

func (h *HealthzServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.logger().Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

func (h *HealthzServer) logger() log.Logger {
	if h.log == nil {
		return log.Root()
	}
	return h.log
}

// serve binds addr synchronously so bind errors surface to the caller, then serves in the background
func serve(ctx context.Context, addr string, handler http.Handler, server **http.Server, listener *net.Listener, logger log.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	*server = srv
	*listener = ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", "addr", addr, "err", err)
		}
	}()
	return nil
}
