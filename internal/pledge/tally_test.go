package pledge

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wantamink/pledgeservice/internal/models"
	"github.com/wantamink/pledgeservice/internal/store/storetest"
	"github.com/wantamink/pledgeservice/internal/telemetry"
	"go.uber.org/zap"
)

func scrape(t *testing.T, m *telemetry.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	b, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(b)
}

type countingSource struct {
	calls   atomic.Int32
	counts  []models.CountyCount
	err     error
	gate    chan struct{}
	started chan struct{}
	ctxErr  error
}

func (c *countingSource) CountyCounts(ctx context.Context) ([]models.CountyCount, error) {
	if c.calls.Add(1) == 1 && c.started != nil {
		close(c.started)
	}
	if c.gate != nil {
		<-c.gate
	}
	c.ctxErr = ctx.Err()
	if c.err != nil {
		return nil, c.err
	}
	return c.counts, nil
}

func TestTallyCachesForTTL(t *testing.T) {
	src := &countingSource{counts: []models.CountyCount{{County: "Nairobi", PledgeCount: 3}}}
	metrics := telemetry.NewMetrics()
	tally := NewTally(src, 30*time.Second, zap.NewNop(), metrics)
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	tally.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		counts, err := tally.Counts(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(3), Total(counts))
	}
	assert.Equal(t, int32(1), src.calls.Load())

	now = now.Add(31 * time.Second)
	_, err := tally.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())

	out := scrape(t, metrics)
	assert.Contains(t, out, `pledgeservice_county_tally_cache_total{result="hit"} 2`)
	assert.Contains(t, out, `pledgeservice_county_tally_cache_total{result="miss"} 2`)
}

func TestTallyCollapsesConcurrentMisses(t *testing.T) {
	src := &countingSource{
		counts: []models.CountyCount{{County: "Kisumu", PledgeCount: 1}},
		gate:   make(chan struct{}),
	}
	tally := NewTally(src, time.Minute, zap.NewNop(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			counts, err := tally.Counts(context.Background())
			assert.NoError(t, err)
			assert.Len(t, counts, 1)
		}()
	}
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.LessOrEqual(t, src.calls.Load(), int32(2))
}

func TestTallyLookupSurvivesCancelledCaller(t *testing.T) {
	src := &countingSource{
		counts:  []models.CountyCount{{County: "Nakuru", PledgeCount: 4}},
		gate:    make(chan struct{}),
		started: make(chan struct{}),
	}
	tally := NewTally(src, time.Minute, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := tally.Counts(ctx)
		firstErr <- err
	}()
	<-src.started
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	type result struct {
		counts []models.CountyCount
		err    error
	}
	second := make(chan result, 1)
	go func() {
		counts, err := tally.Counts(context.Background())
		second <- result{counts, err}
	}()
	close(src.gate)

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, int64(4), Total(got.counts))
	assert.NoError(t, src.ctxErr)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestTallyServesStaleOnError(t *testing.T) {
	src := &countingSource{counts: []models.CountyCount{{County: "Nairobi", PledgeCount: 5}}}
	tally := NewTally(src, time.Second, zap.NewNop(), nil)
	now := time.Now()
	tally.now = func() time.Time { return now }

	_, err := tally.Counts(context.Background())
	require.NoError(t, err)

	src.err = errors.New("connection reset")
	now = now.Add(time.Minute)
	counts, err := tally.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), Total(counts))

	empty := NewTally(&countingSource{err: errors.New("down")}, time.Second, zap.NewNop(), nil)
	_, err = empty.Counts(context.Background())
	assert.Error(t, err)
}

func TestTallyFromStore(t *testing.T) {
	ctx := context.Background()
	s, _ := storetest.New(t)
	r := NewRecorder(s, NewPhoneHasher(""), zap.NewNop(), nil)

	for i, p := range []struct{ phone, county string }{
		{"254700000001", "Nairobi"},
		{"254700000002", "Nairobi"},
		{"254700000003", "Mombasa"},
		{"254700000004", "Kisumu"},
		{"254700000005", "Mombasa"},
		{"254700000006", "Nairobi"},
	} {
		_, err := r.Record(ctx, verified("T"+string(rune('A'+i)), p.phone, p.county))
		require.NoError(t, err)
	}

	counts, err := NewTally(s, time.Minute, zap.NewNop(), nil).Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.CountyCount{
		{County: "Nairobi", PledgeCount: 3},
		{County: "Mombasa", PledgeCount: 2},
		{County: "Kisumu", PledgeCount: 1},
	}, counts)
	assert.Equal(t, int64(6), Total(counts))
}
