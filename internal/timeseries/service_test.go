package timeseries

import (
	"context"
	"testing"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/cache"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/ingest"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

func seed(t *testing.T, repo *repository.MemoryReadingRepository, sensorID string, rs ...domain.Reading) {
	t.Helper()
	for i := range rs {
		rs[i].SensorID = sensorID
		require.NoError(t, repo.Append(context.Background(), &rs[i]))
	}
}

func newTestService(t *testing.T) (*Service, *repository.MemoryReadingRepository) {
	repo := repository.NewMemoryReadingRepository()
	return NewService(repo, nil, nil, zap.NewNop()), repo
}

func floatPtr(f float64) *float64 { return &f }

func statusPtr(s domain.Status) *domain.Status { return &s }

func TestTruncate(t *testing.T) {
	ts := time.Date(2024, 3, 1, 13, 45, 30, 999, time.FixedZone("X", 3*3600))

	assert.Equal(t, time.Date(2024, 3, 1, 10, 45, 30, 0, time.UTC), Truncate(ts, domain.GranularitySecond))
	assert.Equal(t, time.Date(2024, 3, 1, 10, 45, 0, 0, time.UTC), Truncate(ts, domain.GranularityMinute))
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), Truncate(ts, domain.GranularityHour))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Truncate(ts, domain.GranularityDay))

	// DAY 按 UTC 零点对齐，本地时间已跨日
	late := time.Date(2024, 3, 2, 1, 0, 0, 0, time.FixedZone("X", 3*3600))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Truncate(late, domain.GranularityDay))
}

func TestQueryRaw_FromAfterTo(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.QueryRaw(context.Background(), "s1", at(10), at(0))
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	_, err = svc.QueryAggregated(context.Background(), "s1", at(10), at(0), domain.GranularityMinute, domain.AggregationAvg)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestQueryRaw_InclusiveBoundsAndOrder(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo, "s1",
		domain.Reading{Value: "3", Timestamp: at(20), Status: domain.StatusNormal},
		domain.Reading{Value: "1", Timestamp: at(0), Status: domain.StatusNormal},
		domain.Reading{Value: "2", Timestamp: at(10), Status: domain.StatusNormal},
		domain.Reading{Value: "4", Timestamp: at(30), Status: domain.StatusNormal},
	)

	got, err := svc.QueryRaw(context.Background(), "s1", at(0), at(20))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].Value)
	assert.Equal(t, "3", got[2].Value)
}

func TestQueryAggregated_PerMinuteAvg(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo, "s1",
		domain.Reading{Value: "10", Timestamp: at(0), Status: domain.StatusNormal},
		domain.Reading{Value: "20", Timestamp: at(30), Status: domain.StatusNormal},
		domain.Reading{Value: "30", Timestamp: at(60), Status: domain.StatusNormal},
	)

	windows, err := svc.QueryAggregated(context.Background(), "s1", at(0), at(90), domain.GranularityMinute, domain.AggregationAvg)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, base, windows[0].Timestamp)
	assert.Equal(t, 15.0, *windows[0].Value)
	assert.Nil(t, windows[0].Status)
	assert.Equal(t, base.Add(time.Minute), windows[1].Timestamp)
	assert.Equal(t, 30.0, *windows[1].Value)
}

func TestQueryAggregated_TwoMinuteBuckets(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo, "s1",
		domain.Reading{Value: "2", Timestamp: at(5), Status: domain.StatusNormal},
		domain.Reading{Value: "4", Timestamp: at(40), Status: domain.StatusNormal},
		domain.Reading{Value: "9", Timestamp: at(70), Status: domain.StatusNormal},
	)

	windows, err := svc.QueryAggregated(context.Background(), "s1", base, base.Add(2*time.Minute), domain.GranularityMinute, domain.AggregationAvg)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), windows[0].Timestamp)
	assert.Equal(t, 3.0, *windows[0].Value)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 1, 0, 0, time.UTC), windows[1].Timestamp)
	assert.Equal(t, 9.0, *windows[1].Value)
}

func TestIngestedUnparseableValueInAggregates(t *testing.T) {
	asset := "asset-1"
	sensors := repository.NewMemorySensorRepository(domain.Sensor{
		ID: "s1", MinValue: "0", MaxValue: "100", IsActive: true, CompanyID: "company-1", AssetID: &asset,
	})
	svc, repo := newTestService(t)
	g := ingest.NewGateway(sensors, repo, nil, nil, 0.1, nil, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, g.Ingest(ctx, "s1", "5", at(1)))
	require.NoError(t, g.Ingest(ctx, "s1", "abc", at(2)))
	require.NoError(t, g.Ingest(ctx, "s1", "50", at(3)))
	require.NoError(t, g.Ingest(ctx, "s1", "-1", at(4)))

	raw, err := svc.QueryRaw(ctx, "s1", base, at(59))
	require.NoError(t, err)
	require.Len(t, raw, 4)
	assert.Equal(t, []domain.Status{domain.StatusWarning, domain.StatusUndefined, domain.StatusNormal, domain.StatusCritical},
		[]domain.Status{raw[0].Status, raw[1].Status, raw[2].Status, raw[3].Status})
	assert.Equal(t, "abc", raw[1].Value)

	avg, err := svc.QueryAggregated(ctx, "s1", base, at(59), domain.GranularityMinute, domain.AggregationAvg)
	require.NoError(t, err)
	require.Len(t, avg, 1)
	assert.InDelta(t, 18.0, *avg[0].Value, 1e-9)

	count, err := svc.QueryAggregated(ctx, "s1", base, at(59), domain.GranularityMinute, domain.AggregationCount)
	require.NoError(t, err)
	require.Len(t, count, 1)
	assert.Equal(t, 4.0, *count[0].Value)
}

func TestQueryAggregated_AllReducers(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo, "s1",
		domain.Reading{Value: "5", Timestamp: at(1), Status: domain.StatusWarning},
		domain.Reading{Value: "n/a", Timestamp: at(2), Status: domain.StatusUndefined},
		domain.Reading{Value: "2,5", Timestamp: at(3), Status: domain.StatusNormal},
		domain.Reading{Value: "12", Timestamp: at(4), Status: domain.StatusCritical},
	)

	tests := []struct {
		agg    domain.AggregationType
		value  *float64
		status *domain.Status
	}{
		{domain.AggregationAvg, floatPtr(6.5), nil},
		{domain.AggregationMin, floatPtr(2.5), nil},
		{domain.AggregationMax, floatPtr(12), nil},
		{domain.AggregationSum, floatPtr(19.5), nil},
		{domain.AggregationCount, floatPtr(4), nil},
		{domain.AggregationFirst, floatPtr(5), statusPtr(domain.StatusWarning)},
		{domain.AggregationLast, floatPtr(12), statusPtr(domain.StatusCritical)},
	}

	for _, tt := range tests {
		t.Run(string(tt.agg), func(t *testing.T) {
			windows, err := svc.QueryAggregated(context.Background(), "s1", at(0), at(59), domain.GranularityMinute, tt.agg)
			require.NoError(t, err)
			require.Len(t, windows, 1)
			assert.Equal(t, tt.value, windows[0].Value)
			assert.Equal(t, tt.status, windows[0].Status)
		})
	}
}

func TestQueryAggregated_AllUndefinedBucket(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo, "s1",
		domain.Reading{Value: "x", Timestamp: at(1), Status: domain.StatusUndefined},
		domain.Reading{Value: "", Timestamp: at(2), Status: domain.StatusUndefined},
	)

	for _, agg := range []domain.AggregationType{domain.AggregationAvg, domain.AggregationMin, domain.AggregationMax, domain.AggregationSum} {
		windows, err := svc.QueryAggregated(context.Background(), "s1", at(0), at(10), domain.GranularitySecond, agg)
		require.NoError(t, err)
		require.Len(t, windows, 2)
		assert.Nil(t, windows[0].Value, agg)
		assert.Nil(t, windows[1].Value, agg)
	}

	windows, err := svc.QueryAggregated(context.Background(), "s1", at(0), at(10), domain.GranularityHour, domain.AggregationCount)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, 2.0, *windows[0].Value)

	windows, err = svc.QueryAggregated(context.Background(), "s1", at(0), at(10), domain.GranularityHour, domain.AggregationLast)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Nil(t, windows[0].Value)
	assert.Equal(t, statusPtr(domain.StatusUndefined), windows[0].Status)
}

func TestQueryAggregated_RejectsRawAndUnknownAggregation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.QueryAggregated(context.Background(), "s1", at(0), at(1), domain.GranularityRaw, domain.AggregationAvg)
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	_, err = svc.QueryAggregated(context.Background(), "s1", at(0), at(1), domain.GranularityMinute, "MEDIAN")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestQuery_RawIgnoresAggregation(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo, "s1",
		domain.Reading{Value: "1,5", Timestamp: at(0), Status: domain.StatusNormal},
		domain.Reading{Value: "bad", Timestamp: at(1), Status: domain.StatusUndefined},
	)

	points, err := svc.Query(context.Background(), domain.HistoryQuery{
		SensorID: "s1", From: at(0), To: at(1),
		Granularity: domain.GranularityRaw, AggregationType: domain.AggregationSum,
	})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 1.5, *points[0].Value)
	assert.Equal(t, statusPtr(domain.StatusNormal), points[0].Status)
	assert.Nil(t, points[1].Value)
	assert.Equal(t, statusPtr(domain.StatusUndefined), points[1].Status)
}

func TestQuery_DefaultsToAvg(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo, "s1",
		domain.Reading{Value: "1", Timestamp: at(0), Status: domain.StatusNormal},
		domain.Reading{Value: "3", Timestamp: at(1), Status: domain.StatusNormal},
	)

	points, err := svc.Query(context.Background(), domain.HistoryQuery{
		SensorID: "s1", From: at(0), To: at(1), Granularity: domain.GranularityHour,
	})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 2.0, *points[0].Value)
	assert.Nil(t, points[0].Status)
}

func TestQuery_EmptyRangeReturnsEmptySlice(t *testing.T) {
	svc, _ := newTestService(t)

	points, err := svc.Query(context.Background(), domain.HistoryQuery{SensorID: "s1", From: at(0), To: at(10)})
	require.NoError(t, err)
	assert.NotNil(t, points)
	assert.Empty(t, points)
}

func TestSummary(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo, "s1",
		domain.Reading{Value: "4", Timestamp: at(0), Status: domain.StatusWarning},
		domain.Reading{Value: "10", Timestamp: at(1), Status: domain.StatusNormal},
		domain.Reading{Value: "120", Timestamp: at(2), Status: domain.StatusCritical},
		domain.Reading{Value: "??", Timestamp: at(3), Status: domain.StatusUndefined},
	)

	sum, err := svc.Summary(context.Background(), "s1", at(0), at(3))
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Count)
	assert.Equal(t, 4.0, *sum.Min)
	assert.Equal(t, 120.0, *sum.Max)
	assert.InDelta(t, 44.666, *sum.Avg, 0.001)
	assert.Nil(t, sum.Last)
	assert.Equal(t, statusPtr(domain.StatusUndefined), sum.LastStatus)
	assert.Equal(t, 1, sum.WarningCount)
	assert.Equal(t, 1, sum.CriticalCount)
	assert.Equal(t, 1, sum.NormalCount)
	assert.Equal(t, 1, sum.UndefinedCount)
}

type fakeLatest struct {
	reading *domain.Reading
	err     error
}

func (f *fakeLatest) Get(context.Context, string) (*domain.Reading, error) { return f.reading, f.err }

func TestLatest_CacheHitAndFallback(t *testing.T) {
	repo := repository.NewMemoryReadingRepository()
	seed(t, repo, "s1", domain.Reading{Value: "from-store", Timestamp: at(0), Status: domain.StatusNormal})

	hit := NewService(repo, &fakeLatest{reading: &domain.Reading{Value: "from-cache"}}, nil, zap.NewNop())
	r, err := hit.Latest(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "from-cache", r.Value)

	miss := NewService(repo, &fakeLatest{err: cache.ErrMiss}, nil, zap.NewNop())
	r, err = miss.Latest(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "from-store", r.Value)

	_, err = miss.Latest(context.Background(), "s2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
