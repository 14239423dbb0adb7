package service

import (
	"context"
	"net/http"
	"time"

	"github.com/SherlockH0olms/Intellica/backend/internal/config"

	"go.uber.org/zap"
)

// Server HTTP API 服务，关闭时最多等待 ShutdownTimeout
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *zap.Logger
}

func NewServer(cfg config.HTTPConfig, handler http.Handler, logger *zap.Logger) *Server {
	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	return &Server{httpServer: s, shutdownTimeout: cfg.ShutdownTimeout, logger: logger}
}

// Start 阻塞直到服务关闭；正常关闭时返回 http.ErrServerClosed
func (s *Server) Start() error {
	s.logger.Info("Starting intellica-backend HTTP server",
		zap.String("addr", s.httpServer.Addr),
		zap.Duration("read_header_timeout", s.httpServer.ReadHeaderTimeout))
	return s.httpServer.ListenAndServe()
}

// Stop 在 ctx 与 ShutdownTimeout 中较早到期者之前完成优雅关闭
func (s *Server) Stop(ctx context.Context) error {
	if s.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}
	s.logger.Info("Stopping intellica-backend HTTP server",
		zap.String("addr", s.httpServer.Addr),
		zap.Duration("timeout", s.shutdownTimeout))
	return s.httpServer.Shutdown(ctx)
}
