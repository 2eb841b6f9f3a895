package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"

	"github.com/relvacode/iso8601"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(body, out)
}

// statusFromError 错误分类 → HTTP 状态码
func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError 写错误响应；5xx 不向调用方暴露内部错误
func writeError(w http.ResponseWriter, logger *zap.Logger, r *http.Request, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, status, Fail("internal error"))
		return
	}
	writeJSON(w, status, Fail(err.Error()))
}

// parseTimeQuery 解析必填的 ISO-8601 查询参数
func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, domain.BadRequestf("%s is required", key)
	}
	t, err := iso8601.ParseString(raw)
	if err != nil {
		return time.Time{}, domain.BadRequestf("invalid %s %q", key, raw)
	}
	return t.UTC(), nil
}
