package session

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swing-service/internal/analytics"
	"swing-service/internal/models"
	"swing-service/internal/monitoring"
	"swing-service/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

var epoch = time.Date(2025, 11, 8, 2, 49, 42, 0, time.UTC)

// stream returns n samples at 100 Hz with one 3.5 rad/s swing centred on peakAt.
func stream(n, peakAt int) []models.Sample {
	out := make([]models.Sample, n)
	for i := range out {
		mag := 0.4
		if d := i - peakAt; d > -15 && d < 15 {
			mag = math.Max(mag, 3.5*math.Cos(math.Pi/2*float64(d)/15))
		}
		out[i] = models.NewSample(1718329315+float64(i)*0.01,
			models.Vec3{X: mag}, models.Vec3{Y: -1}, models.Vec3{Z: 0.2}, models.Quaternion{W: 1})
	}
	return out
}

func newTestRegistry() (*Registry, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(epoch)
	return NewRegistry(analytics.DefaultConfig(), WithClock(clock)), clock
}

func TestRegistryStartIsFirstWriterWins(t *testing.T) {
	r, _ := newTestRegistry()

	c1, created := r.Start("watch_1", "AppleWatch")
	require.True(t, created)
	c2, created := r.Start("watch_1", "OtherWatch")
	assert.False(t, created)
	assert.Same(t, c1, c2)
	assert.Equal(t, "AppleWatch", c2.Device())
	assert.Equal(t, 1, r.Len())
}

func TestRegistryIngestAutoProvisions(t *testing.T) {
	r, _ := newTestRegistry()

	res, err := r.Ingest("watch_2", "AppleWatch", stream(10, 500))
	require.NoError(t, err)
	assert.True(t, res.Provisioned)
	assert.Empty(t, res.Events)

	res, err = r.Ingest("watch_2", "AppleWatch", stream(10, 500)[:0])
	require.NoError(t, err)
	assert.False(t, res.Provisioned)

	stats, err := r.Statistics("watch_2")
	require.NoError(t, err)
	assert.EqualValues(t, 10, stats.SamplesProcessed)
	assert.Equal(t, models.StatusActive, stats.Status)
}

func TestRegistryIngestDetectsSwing(t *testing.T) {
	r, _ := newTestRegistry()
	samples := stream(400, 150)

	var events []models.SwingEvent
	for i := 0; i < len(samples); i += 40 {
		res, err := r.Ingest("watch_3", "AppleWatch", samples[i:i+40])
		require.NoError(t, err)
		events = append(events, res.Events...)
	}
	require.Len(t, events, 1)
	assert.EqualValues(t, 150, events[0].Sequence)
	assert.Equal(t, samples[150].Timestamp, events[0].Timestamp)

	stats, err := r.Statistics("watch_3")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.PeaksDetected)
	assert.Equal(t, 300, stats.BufferOccupancy)
	assert.Equal(t, 300, stats.BufferCapacity)
	require.NotNil(t, stats.LastSwingAt)
	assert.Equal(t, samples[150].Timestamp, *stats.LastSwingAt)
}

func TestRegistrySamplesProcessedIndependentOfBatching(t *testing.T) {
	samples := stream(1000, 600)
	var want models.Statistics
	var wantEvents []models.SwingEvent

	for i, size := range []int{1000, 1, 17, 250} {
		r, _ := newTestRegistry()
		var events []models.SwingEvent
		for j := 0; j < len(samples); j += size {
			res, err := r.Ingest("s", "AppleWatch", samples[j:min(j+size, len(samples))])
			require.NoError(t, err)
			events = append(events, res.Events...)
		}
		sum, err := r.End("s")
		require.NoError(t, err)
		events = append(events, sum.FinalEvents...)

		assert.EqualValues(t, 1000, sum.Statistics.SamplesProcessed)
		if i == 0 {
			want, wantEvents = sum.Statistics, events
			continue
		}
		assert.Equal(t, want, sum.Statistics, "batch size %d", size)
		assert.Equal(t, wantEvents, events, "batch size %d", size)
	}
}

func TestRegistryEnd(t *testing.T) {
	r, clock := newTestRegistry()
	c, _ := r.Start("watch_4", "AppleWatch")

	_, err := r.Ingest("watch_4", "AppleWatch", stream(200, 1000))
	require.NoError(t, err)
	clock.Advance(4 * time.Second)

	sum, err := r.End("watch_4")
	require.NoError(t, err)
	assert.Equal(t, models.StatusEnded, sum.Statistics.Status)
	assert.EqualValues(t, 200, sum.Statistics.SamplesProcessed)
	assert.InDelta(t, 4.0, sum.Statistics.ElapsedSeconds, 1e-9)
	assert.InDelta(t, 50.0, sum.Statistics.SampleRateHz, 1e-9)
	require.NotNil(t, sum.Statistics.EndedAt)
	assert.Equal(t, epoch.Add(4*time.Second), *sum.Statistics.EndedAt)
	assert.Equal(t, 0, r.Len())

	// a stale handle still reports the final numbers but refuses samples
	clock.Advance(time.Minute)
	assert.Equal(t, sum.Statistics, c.Statistics())
	_, err = c.Ingest(stream(1, 0))
	assert.ErrorIs(t, err, ErrSessionEnded)

	_, err = r.End("watch_4")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = r.Statistics("watch_4")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistryEndFlushesTrailingSwing(t *testing.T) {
	r, _ := newTestRegistry()
	res, err := r.Ingest("watch_5", "AppleWatch", stream(280, 260))
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	sum, err := r.End("watch_5")
	require.NoError(t, err)
	require.Len(t, sum.FinalEvents, 1)
	assert.EqualValues(t, 260, sum.FinalEvents[0].Sequence)
	assert.EqualValues(t, 1, sum.Statistics.PeaksDetected)
}

func TestRegistryIngestReportsSettledSwingWithoutEnd(t *testing.T) {
	r, _ := newTestRegistry()
	res, err := r.Ingest("watch_flank", "AppleWatch", stream(101, 50))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.EqualValues(t, 50, res.Events[0].Sequence)
	assert.EqualValues(t, 1, res.Events[0].Number)

	sum, err := r.End("watch_flank")
	require.NoError(t, err)
	assert.Empty(t, sum.FinalEvents)
	assert.EqualValues(t, 1, sum.Statistics.PeaksDetected)
}

func TestRegistryIngestAfterEndStartsFreshSession(t *testing.T) {
	r, _ := newTestRegistry()
	_, err := r.Ingest("watch_6", "AppleWatch", stream(50, 1000))
	require.NoError(t, err)
	_, err = r.End("watch_6")
	require.NoError(t, err)

	res, err := r.Ingest("watch_6", "AppleWatch", stream(5, 1000))
	require.NoError(t, err)
	assert.True(t, res.Provisioned)
	stats, err := r.Statistics("watch_6")
	require.NoError(t, err)
	assert.EqualValues(t, 5, stats.SamplesProcessed)
}

func TestRegistrySnapshotAndEndAll(t *testing.T) {
	r, _ := newTestRegistry()
	r.Start("b", "AppleWatch")
	r.Start("a", "AppleWatch")
	_, err := r.Ingest("c", "AppleWatch", stream(3, 1000))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, r.IDs())
	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.EqualValues(t, 3, snap["c"].SamplesProcessed)

	ended := r.EndAll()
	assert.Len(t, ended, 3)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Snapshot())
}

func TestRegistryConcurrentSessions(t *testing.T) {
	r := NewRegistry(analytics.DefaultConfig())
	const sessions = 16
	samples := stream(600, 300)

	var wg sync.WaitGroup
	found := make([]int, sessions)
	for s := 0; s < sessions; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			id := fmt.Sprintf("watch_%02d", s)
			for i := 0; i < len(samples); i += 20 {
				res, err := r.Ingest(id, "AppleWatch", samples[i:i+20])
				if err != nil {
					t.Errorf("ingest %s: %v", id, err)
					return
				}
				found[s] += len(res.Events)
			}
		}(s)
	}

	// readers race with the writers; every snapshot must be self-consistent
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			for _, st := range r.Snapshot() {
				if st.BufferOccupancy > st.BufferCapacity || uint64(st.BufferOccupancy) > st.SamplesProcessed {
					t.Errorf("torn statistics: %+v", st)
				}
			}
		}
	}()
	wg.Wait()
	<-done

	for s, n := range found {
		assert.Equal(t, 1, n, "session %d", s)
	}
	assert.Equal(t, sessions, r.Len())
	assert.Len(t, r.EndAll(), sessions)
}
