package httpapi

import (
	"context"
	"net/http"

	"github.com/SherlockH0olms/Intellica/backend/internal/health"

	"go.uber.org/zap"
)

// Version 根路由返回的 API 版本
const Version = "1.0.0"

// HealthReporter /health 的数据来源
type HealthReporter interface {
	Report(ctx context.Context) health.Report
}

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// ServeHTTP 所有响应都带 CORS 头，预检请求直接返回 204
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	setCORSHeaders(w, req)
	if req.Method == http.MethodOptions && req.Header.Get("Access-Control-Request-Method") != "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	r.mux.ServeHTTP(w, req)
}

// 允许任意来源；带凭证的请求必须回显具体 Origin，浏览器不接受 "*"
func setCORSHeaders(w http.ResponseWriter, req *http.Request) {
	h := w.Header()
	origin := req.Header.Get("Origin")
	if origin != "" {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	} else {
		h.Set("Access-Control-Allow-Origin", "*")
	}
	h.Set("Access-Control-Allow-Credentials", "true")

	if req.Method != http.MethodOptions {
		return
	}
	methods := req.Header.Get("Access-Control-Request-Method")
	if methods == "" {
		methods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	}
	h.Set("Access-Control-Allow-Methods", methods)
	if headers := req.Header.Get("Access-Control-Request-Headers"); headers != "" {
		h.Set("Access-Control-Allow-Headers", headers)
	}
	h.Set("Access-Control-Max-Age", "600")
}

// RegisterSystemRoutes 注册根路由和健康检查
func (r *Router) RegisterSystemRoutes(hr HealthReporter) {
	r.Handle("/", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/" {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found"})
			return
		}
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"message": "Intellica Backend is running",
			"version": Version,
		})
	})

	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		report := hr.Report(req.Context())
		if report.Status != health.OverallHealthy {
			r.logger.Warn("Health check degraded", zap.Any("services", report.Services))
		}
		writeJSON(w, http.StatusOK, report)
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Allow", "GET, OPTIONS")
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"detail": "Method Not Allowed"})
}
