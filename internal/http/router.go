package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

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

// HandleHandler 支持 http.Handler 接口（用于 /metrics 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterTelemetryRoutes 注册上报与查询路由
func (r *Router) RegisterTelemetryRoutes(h *TelemetryHandler) {
	r.HandleHandler("/api/v1/readings", h.metrics.WrapHandler("ingest", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.IngestReading(w, req)
	})))

	// /api/v1/sensors/{id}/data | summary | latest
	r.HandleHandler("/api/v1/sensors/", h.metrics.WrapHandler("sensors", sensorReads(h, func(parts []string) (sensorRef, string, bool) {
		if len(parts) != 2 || parts[0] == "" {
			return sensorRef{}, "", false
		}
		return sensorRef{SensorID: parts[0]}, parts[1], true
	})))

	// /api/v1/assets/{assetId}/sensors/{id}/data | summary | latest
	r.HandleHandler("/api/v1/assets/", h.metrics.WrapHandler("assets", sensorReads(h, func(parts []string) (sensorRef, string, bool) {
		if len(parts) != 4 || parts[0] == "" || parts[1] != "sensors" || parts[2] == "" {
			return sensorRef{}, "", false
		}
		return sensorRef{SensorID: parts[2], AssetID: parts[0]}, parts[3], true
	})))

	// /api/v1/companies/{companyId}/sensors/{id}/data | summary | latest
	r.HandleHandler("/api/v1/companies/", h.metrics.WrapHandler("companies", sensorReads(h, func(parts []string) (sensorRef, string, bool) {
		if len(parts) != 4 || parts[0] == "" || parts[1] != "sensors" || parts[2] == "" {
			return sensorRef{}, "", false
		}
		return sensorRef{SensorID: parts[2], CompanyID: parts[0]}, parts[3], true
	})))
}

// sensorReads 按 parse 解析路径（去掉 /api/v1/{resource}/ 前缀后按 / 拆分）并分发到查询接口
func sensorReads(h *TelemetryHandler, parse func(parts []string) (sensorRef, string, bool)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(req.URL.Path, "/api/v1/")
		parts := strings.Split(rest, "/")
		ref, action, ok := parse(parts[1:])
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch action {
		case "data":
			h.GetHistory(w, req, ref)
		case "summary":
			h.GetSummary(w, req, ref)
		case "latest":
			h.GetLatest(w, req, ref)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// RegisterOpsRoutes 注册 /health 和 /metrics
func (r *Router) RegisterOpsRoutes(health http.HandlerFunc, metrics http.Handler) {
	r.Handle("/health", health)
	if metrics != nil {
		r.HandleHandler("/metrics", metrics)
	}
}
