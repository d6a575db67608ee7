package service

import (
	"context"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes the default Prometheus registry on /metrics
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
}

func (m *MetricsServer) Start(ctx context.Context, addr string) error {
	hdlr := http.NewServeMux()
	hdlr.Handle("/metrics", promhttp.Handler())
	return serve(ctx, addr, hdlr, &m.server, &m.listener, log.Root())
}

// Addr returns the bound address, useful when listening on port 0
func (m *MetricsServer) Addr() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
