package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/fanout"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var ts = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func stringPtr(s string) *string { return &s }

type recordingSink struct {
	mu   sync.Mutex
	msgs []domain.LiveMessage
	err  error
	// 推送时读数应已可查
	onSubmit func(domain.LiveMessage)
}

func (s *recordingSink) Submit(msg domain.LiveMessage) error {
	if s.onSubmit != nil {
		s.onSubmit(msg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

type recordingLatest struct {
	mu       sync.Mutex
	readings []domain.Reading
	err      error
}

func (l *recordingLatest) Put(_ context.Context, r *domain.Reading) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readings = append(l.readings, *r)
	return l.err
}

type failingStore struct{ repository.ReadingRepository }

func (failingStore) Append(context.Context, *domain.Reading) error { return errors.New("db down") }

func activeSensor() domain.Sensor {
	return domain.Sensor{
		ID:           "sensor-1",
		SerialNumber: "SN-1",
		MinValue:     "0",
		MaxValue:     "100",
		IsActive:     true,
		CompanyID:    "company-1",
		AssetID:      stringPtr("asset-1"),
		Type:         domain.SensorType{Name: "Temperature", Unit: "°C"},
	}
}

func setup(t *testing.T, sensors ...domain.Sensor) (*Gateway, *repository.MemoryReadingRepository, *recordingSink) {
	reg := repository.NewMemorySensorRepository(sensors...)
	store := repository.NewMemoryReadingRepository()
	sink := &recordingSink{}
	return NewGateway(reg, store, sink, nil, 0.1, nil, zap.NewNop()), store, sink
}

func stored(t *testing.T, store *repository.MemoryReadingRepository, sensorID string) []domain.Reading {
	t.Helper()
	got, err := store.Range(context.Background(), sensorID, ts.Add(-24*time.Hour), ts.Add(24*time.Hour))
	require.NoError(t, err)
	return got
}

func TestIngest_ClassifiesPersistsAndPublishes(t *testing.T) {
	g, store, sink := setup(t, activeSensor())

	require.NoError(t, g.Ingest(context.Background(), "sensor-1", "95,5", ts))

	rs := stored(t, store, "sensor-1")
	require.Len(t, rs, 1)
	assert.Equal(t, domain.StatusWarning, rs[0].Status)
	assert.Equal(t, "95,5", rs[0].Value)
	assert.NotEmpty(t, rs[0].ID)
	require.NotNil(t, rs[0].AssetID)
	assert.Equal(t, "asset-1", *rs[0].AssetID)

	require.Equal(t, 1, sink.count())
	msg := sink.msgs[0]
	assert.Equal(t, "sensor-1", msg.SensorID)
	assert.Equal(t, "SN-1", msg.SerialNumber)
	assert.Equal(t, "95,5", msg.Value)
	assert.Equal(t, domain.StatusWarning, msg.Status)
	assert.Equal(t, "Temperature", msg.SensorType)
	assert.Equal(t, "°C", msg.Unit)
	assert.Equal(t, "asset-1", *msg.AssetID)
}

func TestIngest_UnknownSensor(t *testing.T) {
	g, _, sink := setup(t)

	err := g.Ingest(context.Background(), "missing", "1", ts)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, sink.count())
}

func TestIngest_InactiveSensorIsSilentNoop(t *testing.T) {
	s := activeSensor()
	s.IsActive = false
	g, store, sink := setup(t, s)

	require.NoError(t, g.Ingest(context.Background(), "sensor-1", "50", ts))
	assert.Empty(t, stored(t, store, "sensor-1"))
	assert.Equal(t, 0, sink.count())
}

func TestIngest_UnparseableValueIsUndefined(t *testing.T) {
	g, store, sink := setup(t, activeSensor())

	require.NoError(t, g.Ingest(context.Background(), "sensor-1", "ERR", ts))
	require.NoError(t, g.Ingest(context.Background(), "sensor-1", "", ts.Add(time.Second)))

	rs := stored(t, store, "sensor-1")
	require.Len(t, rs, 2)
	assert.Equal(t, domain.StatusUndefined, rs[0].Status)
	assert.Equal(t, domain.StatusUndefined, rs[1].Status)
	assert.Equal(t, 2, sink.count())
}

func TestIngest_LongUnparseableValueIsStored(t *testing.T) {
	g, store, _ := setup(t, activeSensor())
	long := strings.Repeat("x", 500)

	require.NoError(t, g.Ingest(context.Background(), "sensor-1", long, ts))

	rs := stored(t, store, "sensor-1")
	require.Len(t, rs, 1)
	assert.Equal(t, long, rs[0].Value)
	assert.Equal(t, domain.StatusUndefined, rs[0].Status)
}

func TestIngest_InvalidCalibrationDegradesToUndefined(t *testing.T) {
	s := activeSensor()
	s.MaxValue = "n/a"
	g, store, _ := setup(t, s)

	require.NoError(t, g.Ingest(context.Background(), "sensor-1", "50", ts))
	rs := stored(t, store, "sensor-1")
	require.Len(t, rs, 1)
	assert.Equal(t, domain.StatusUndefined, rs[0].Status)
}

func TestIngest_StoreFailureSkipsFanout(t *testing.T) {
	reg := repository.NewMemorySensorRepository(activeSensor())
	sink := &recordingSink{}
	g := NewGateway(reg, failingStore{}, sink, nil, 0.1, nil, zap.NewNop())

	err := g.Ingest(context.Background(), "sensor-1", "50", ts)
	assert.Error(t, err)
	assert.Equal(t, 0, sink.count())
}

func TestIngest_FanoutFailureDoesNotFailIngest(t *testing.T) {
	g, store, sink := setup(t, activeSensor())
	sink.err = fanout.ErrQueueFull

	require.NoError(t, g.Ingest(context.Background(), "sensor-1", "50", ts))
	assert.Len(t, stored(t, store, "sensor-1"), 1)
}

func TestIngest_WritesLatestCacheEvenWhenFanoutDrops(t *testing.T) {
	reg := repository.NewMemorySensorRepository(activeSensor())
	store := repository.NewMemoryReadingRepository()
	sink := &recordingSink{err: fanout.ErrQueueFull}
	latest := &recordingLatest{}
	g := NewGateway(reg, store, sink, latest, 0.1, nil, zap.NewNop())

	require.NoError(t, g.Ingest(context.Background(), "sensor-1", "50", ts))

	rs := stored(t, store, "sensor-1")
	require.Len(t, rs, 1)
	require.Len(t, latest.readings, 1)
	assert.Equal(t, rs[0], latest.readings[0])
}

func TestIngest_LatestCacheFailureDoesNotFailIngest(t *testing.T) {
	reg := repository.NewMemorySensorRepository(activeSensor())
	store := repository.NewMemoryReadingRepository()
	latest := &recordingLatest{err: errors.New("redis down")}
	sink := &recordingSink{}
	g := NewGateway(reg, store, sink, latest, 0.1, nil, zap.NewNop())

	require.NoError(t, g.Ingest(context.Background(), "sensor-1", "50", ts))
	assert.Len(t, stored(t, store, "sensor-1"), 1)
	assert.Equal(t, 1, sink.count())
}

func TestIngest_StoreFailureSkipsLatestCache(t *testing.T) {
	reg := repository.NewMemorySensorRepository(activeSensor())
	latest := &recordingLatest{}
	g := NewGateway(reg, failingStore{}, nil, latest, 0.1, nil, zap.NewNop())

	assert.Error(t, g.Ingest(context.Background(), "sensor-1", "50", ts))
	assert.Empty(t, latest.readings)
}

func TestIngest_PersistsBeforePublishing(t *testing.T) {
	g, store, sink := setup(t, activeSensor())
	var visible int
	sink.onSubmit = func(msg domain.LiveMessage) {
		visible = len(stored(t, store, msg.SensorID))
	}

	require.NoError(t, g.Ingest(context.Background(), "sensor-1", "50", ts))
	assert.Equal(t, 1, visible)
}

func TestIngest_AssetFollowsCurrentAssignment(t *testing.T) {
	reg := repository.NewMemorySensorRepository(activeSensor())
	store := repository.NewMemoryReadingRepository()
	g := NewGateway(reg, store, nil, nil, 0.1, nil, zap.NewNop())

	require.NoError(t, g.Ingest(context.Background(), "sensor-1", "50", ts))

	moved := activeSensor()
	moved.AssetID = stringPtr("asset-2")
	reg.Put(moved)
	require.NoError(t, g.Ingest(context.Background(), "sensor-1", "50", ts.Add(time.Second)))

	unassigned := activeSensor()
	unassigned.AssetID = nil
	reg.Put(unassigned)
	require.NoError(t, g.Ingest(context.Background(), "sensor-1", "50", ts.Add(2*time.Second)))

	rs := stored(t, store, "sensor-1")
	require.Len(t, rs, 3)
	assert.Equal(t, "asset-1", *rs[0].AssetID)
	assert.Equal(t, "asset-2", *rs[1].AssetID)
	assert.Nil(t, rs[2].AssetID)
}

func TestIngest_DuplicatesAreStoredTwice(t *testing.T) {
	g, store, _ := setup(t, activeSensor())

	require.NoError(t, g.Ingest(context.Background(), "sensor-1", "50", ts))
	require.NoError(t, g.Ingest(context.Background(), "sensor-1", "50", ts))

	rs := stored(t, store, "sensor-1")
	require.Len(t, rs, 2)
	assert.NotEqual(t, rs[0].ID, rs[1].ID)
}

func TestIngest_Concurrent(t *testing.T) {
	s2 := activeSensor()
	s2.ID = "sensor-2"
	g, store, sink := setup(t, activeSensor(), s2)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "sensor-1"
			if i%2 == 1 {
				id = "sensor-2"
			}
			assert.NoError(t, g.Ingest(context.Background(), id, fmt.Sprint(i), ts.Add(time.Duration(i)*time.Millisecond)))
		}(i)
	}
	wg.Wait()

	assert.Len(t, stored(t, store, "sensor-1"), 50)
	assert.Len(t, stored(t, store, "sensor-2"), 50)
	assert.Equal(t, 100, sink.count())
}

func TestHandle_TechnicIDIgnored(t *testing.T) {
	g, store, _ := setup(t, activeSensor())

	err := g.Handle(context.Background(), domain.IngestRequest{
		SensorID:  "sensor-1",
		TechnicID: stringPtr("someone-else"),
		Value:     "50",
		Timestamp: "2024-03-01T10:00:00Z",
	})
	require.NoError(t, err)

	rs := stored(t, store, "sensor-1")
	require.Len(t, rs, 1)
	assert.Equal(t, "asset-1", *rs[0].AssetID)
	assert.True(t, ts.Equal(rs[0].Timestamp))
}

func TestHandle_Timestamps(t *testing.T) {
	g, store, _ := setup(t, activeSensor())
	g.now = func() time.Time { return ts.Add(time.Hour) }

	// 无时区按 UTC
	require.NoError(t, g.Handle(context.Background(), domain.IngestRequest{SensorID: "sensor-1", Value: "1", Timestamp: "2024-03-01T10:00:00"}))
	// 带偏移量统一转 UTC
	require.NoError(t, g.Handle(context.Background(), domain.IngestRequest{SensorID: "sensor-1", Value: "2", Timestamp: "2024-03-01T13:00:01+03:00"}))
	// 为空取接收时间
	require.NoError(t, g.Handle(context.Background(), domain.IngestRequest{SensorID: "sensor-1", Value: "3"}))

	rs := stored(t, store, "sensor-1")
	require.Len(t, rs, 3)
	assert.True(t, ts.Equal(rs[0].Timestamp))
	assert.True(t, ts.Add(time.Second).Equal(rs[1].Timestamp))
	assert.True(t, ts.Add(time.Hour).Equal(rs[2].Timestamp))
	assert.Equal(t, time.UTC, rs[1].Timestamp.Location())
}

func TestHandle_BadRequests(t *testing.T) {
	g, _, _ := setup(t, activeSensor())

	err := g.Handle(context.Background(), domain.IngestRequest{SensorID: "sensor-1", Value: "1", Timestamp: "yesterday"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	err = g.Handle(context.Background(), domain.IngestRequest{SensorID: " ", Value: "1"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}
