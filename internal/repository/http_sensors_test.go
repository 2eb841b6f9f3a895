package repository

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPSensorRegistry_GetSensorByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/sensors/sensor-1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"code":2000,"type":"success","message":"ok","result":{
				"id":"sensor-1","serialNumber":"SN-1","minValue":"0","maxValue":"100",
				"isActive":true,"companyId":"c1","assetId":"a1",
				"type":{"name":"Pressure","unit":"bar"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	reg := NewHTTPSensorRegistry(srv.URL, time.Second, zap.NewNop())

	s, err := reg.GetSensorByID(context.Background(), "sensor-1")
	require.NoError(t, err)
	assert.Equal(t, "SN-1", s.SerialNumber)
	assert.Equal(t, "bar", s.Type.Unit)
	require.NotNil(t, s.AssetID)
	assert.Equal(t, "a1", *s.AssetID)

	_, err = reg.GetSensorByID(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHTTPSensorRegistry_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":2000,"result":{"id":"sensor-1","isActive":false}}`))
	}))
	defer srv.Close()

	reg := NewHTTPSensorRegistry(srv.URL, time.Second, zap.NewNop())

	s, err := reg.GetSensorByID(context.Background(), "sensor-1")
	require.NoError(t, err)
	assert.False(t, s.IsActive)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}
