package importer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IBM/arcade/pkg/store"
	"github.com/IBM/arcade/pkg/store/storetest"
)

var utSource = Source{Name: "UT - OEM", Public: true, Pattern: `[0-9]{8}_block_[0-9]{2}.tar`, Format: FormatTarGzip}

func newTestRunner(t *testing.T, bucket *memBucket, s store.EntityStore, cfg *Config, opts ...Option) *Runner {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	r, err := NewRunner(bucket, s, DefaultSources(), cfg, opts...)
	require.NoError(t, err)
	return r
}

func recordsFor(t *testing.T, s store.EntityStore, trackingID string) []store.EphemerisRecord {
	t.Helper()
	obj, err := store.First[store.TrackedObject](context.Background(), s, store.Where{"tracking_id": trackingID})
	require.NoError(t, err)
	require.NotNil(t, obj, "tracked object %s", trackingID)
	var recs []store.EphemerisRecord
	require.NoError(t, s.Traverse(context.Background(), obj, store.RelationRecords, &recs, store.QueryOptions{}))
	return recs
}

func isArtifactImported(t *testing.T, s store.EntityStore, name string) bool {
	t.Helper()
	a, err := store.First[store.Artifact](context.Background(), s, store.Where{"name": name})
	require.NoError(t, err)
	require.NotNil(t, a, "artifact %s", name)
	return a.Imported
}

func TestRunSourceImportsISS(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	bucket := newMemBucket()
	bucket.put("20201124_block_25.tar", tarOfGzip(t, member{"25/544.gz", issMessage("2020-11-26T00:00:00")}))
	bucket.put("notes.txt", []byte("not an archive"))

	r := newTestRunner(t, bucket, s, nil)
	stats, err := r.RunSource(ctx, utSource)
	require.NoError(t, err)

	assert.Equal(t, Stats{ArtifactsSeen: 1, ArtifactsImported: 1, RecordsCreated: 1}, stats)
	assert.Zero(t, bucket.downloadCount("notes.txt"))

	obj, err := store.First[store.TrackedObject](ctx, s, store.Where{"tracking_id": "25544"})
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, "25544", obj.CatalogID)
	assert.Equal(t, "1998-067A", obj.InternationalDesignator)
	assert.Equal(t, "ISS (ZARYA)", obj.Name)

	recs := recordsFor(t, s, "25544")
	require.Len(t, recs, 1)
	assert.Equal(t, "2020-11-26T00:00:00.000000", recs[0].StopTime)
	assert.Len(t, recs[0].Lines, 2)
	assert.True(t, isArtifactImported(t, s, "20201124_block_25.tar"))

	ds, err := store.First[store.DataSource](ctx, s, store.Where{"name": "UT - OEM"})
	require.NoError(t, err)
	require.NotNil(t, ds)
	assert.True(t, ds.Public)
	assert.Equal(t, ds.ID, recs[0].DataSourceID)
}

func TestRunSourceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	bucket := newMemBucket()
	bucket.put("20201124_block_25.tar", tarOfGzip(t, member{"25/544.gz", issMessage("2020-11-26T00:00:00")}))
	r := newTestRunner(t, bucket, s, nil)

	_, err := r.RunSource(ctx, utSource)
	require.NoError(t, err)
	stats, err := r.RunSource(ctx, utSource)
	require.NoError(t, err)

	assert.Equal(t, Stats{ArtifactsSeen: 1, ArtifactsSkipped: 1}, stats)
	assert.Equal(t, 1, bucket.downloadCount("20201124_block_25.tar"))
	assert.Len(t, recordsFor(t, s, "25544"), 1)
}

func TestRunSourceSupersedesOlderRecord(t *testing.T) {
	s := storetest.New(t)
	bucket := newMemBucket()
	bucket.put("20201124_block_25.tar", tarOfGzip(t, member{"25/544.gz", issMessage("2020-11-26T00:00:00")}))
	bucket.put("20201125_block_25.tar", tarOfGzip(t, member{"25/544.gz", issMessage("2020-11-27T00:00:00")}))

	stats, err := newTestRunner(t, bucket, s, nil).RunSource(context.Background(), utSource)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.RecordsCreated)
	assert.Equal(t, 1, stats.RecordsSuperseded)
	recs := recordsFor(t, s, "25544")
	require.Len(t, recs, 1)
	assert.Equal(t, "2020-11-27T00:00:00.000000", recs[0].StopTime)
}

func TestRunSourceKeepsNewerRecord(t *testing.T) {
	s := storetest.New(t)
	bucket := newMemBucket()
	// Listed first, so the newer record is stored before the older one arrives.
	bucket.put("20201124_block_01.tar", tarOfGzip(t, member{"25/544.gz", issMessage("2020-11-27T00:00:00")}))
	bucket.put("20201124_block_02.tar", tarOfGzip(t, member{"25/544.gz", issMessage("2020-11-26T00:00:00")}))
	bucket.put("20201124_block_03.tar", tarOfGzip(t, member{"25/544.gz", issMessage("2020-11-27T00:00:00")}))

	stats, err := newTestRunner(t, bucket, s, nil).RunSource(context.Background(), utSource)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.ArtifactsImported)
	assert.Equal(t, 1, stats.RecordsCreated)
	assert.Equal(t, 2, stats.RecordsSkipped)
	recs := recordsFor(t, s, "25544")
	require.Len(t, recs, 1)
	assert.Equal(t, "2020-11-27T00:00:00.000000", recs[0].StopTime)
	assert.True(t, isArtifactImported(t, s, "20201124_block_02.tar"))
}

func TestRunSourceKeepsOneRecordPerSource(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	bucket := newMemBucket()
	bucket.put("20201124_block_25.tar", tarOfGzip(t, member{"25/544.gz", issMessage("2020-11-26T00:00:00")}))
	r := newTestRunner(t, bucket, s, nil)
	_, err := r.RunSource(ctx, utSource)
	require.NoError(t, err)

	other := utSource
	other.Name = "Mirror - OEM"
	_, err = r.RunSource(ctx, other)
	require.NoError(t, err)

	// The artifact is already imported, so the mirror source adds nothing.
	assert.Len(t, recordsFor(t, s, "25544"), 1)

	bucket.put("20201125_block_25.tar", tarOfGzip(t, member{"25/544.gz", issMessage("2020-11-25T00:00:00")}))
	_, err = r.RunSource(ctx, other)
	require.NoError(t, err)
	assert.Len(t, recordsFor(t, s, "25544"), 2)
}

func TestRunSourceIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	bucket := newMemBucket()
	bucket.put("20201124_block_01.tar", []byte("this is not a tar archive at all, just some bytes that go on for a while"))
	bucket.put("20201124_block_02.tar", tarOfGzip(t,
		member{"25/544.gz", issMessage("2020-11-26T00:00:00")},
		member{"48/274.gz", "CCSDS_OEM_VERS = 2.0\nMETA_START\nREF_FRAME = NOPE\n"},
	))
	bucket.put("20201124_block_03.tar", tarOfGzip(t,
		member{"43/013.gz", ccsdsMessage("NOAA 20", "2017-073A", "2020-11-24T00:00:00", "2020-11-25T00:00:00")},
	))

	r := newTestRunner(t, bucket, s, nil)
	stats, err := r.RunSource(ctx, utSource)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.ArtifactsSeen)
	assert.Equal(t, 2, stats.ArtifactsFailed)
	assert.Equal(t, 1, stats.ArtifactsImported)
	assert.False(t, isArtifactImported(t, s, "20201124_block_01.tar"))
	assert.False(t, isArtifactImported(t, s, "20201124_block_02.tar"))
	assert.True(t, isArtifactImported(t, s, "20201124_block_03.tar"))

	// Parsing finishes before anything is stored, so the valid member of the
	// failed artifact left nothing behind.
	obj, err := store.First[store.TrackedObject](ctx, s, store.Where{"tracking_id": "25544"})
	require.NoError(t, err)
	assert.Nil(t, obj)
	assert.Len(t, recordsFor(t, s, "43013"), 1)

	// Failed artifacts are retried on the next run.
	stats, err = r.RunSource(ctx, utSource)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ArtifactsFailed)
	assert.Equal(t, 1, stats.ArtifactsSkipped)
	assert.Equal(t, 2, bucket.downloadCount("20201124_block_01.tar"))
}

func TestRunSourceSkipsAbsentArtifact(t *testing.T) {
	s := storetest.New(t)
	bucket := newMemBucket()
	bucket.missing["20201124_block_25.tar"] = true

	stats, err := newTestRunner(t, bucket, s, nil).RunSource(context.Background(), utSource)
	require.NoError(t, err)

	assert.Equal(t, Stats{ArtifactsSeen: 1, ArtifactsSkipped: 1}, stats)
	assert.False(t, isArtifactImported(t, s, "20201124_block_25.tar"))
}

func TestRunSourceArtifactTimeout(t *testing.T) {
	s := storetest.New(t)
	bucket := newMemBucket()
	bucket.put("20201124_block_01.tar", nil)
	bucket.block["20201124_block_01.tar"] = true
	bucket.put("20201124_block_02.tar", tarOfGzip(t, member{"25/544.gz", issMessage("2020-11-26T00:00:00")}))

	cfg := DefaultConfig()
	cfg.ArtifactTimeout = 50 * time.Millisecond
	start := time.Now()
	stats, err := newTestRunner(t, bucket, s, cfg).RunSource(context.Background(), utSource)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, stats.ArtifactsSkipped)
	assert.Equal(t, 1, stats.ArtifactsImported)
}

func TestRunSourceStarlinkZip(t *testing.T) {
	s := storetest.New(t)
	bucket := newMemBucket()
	bucket.put("20201124051406000000.oem", zipOf(t,
		member{"MEME_44713_STARLINK-1007_1241405_Operational_1290500000_UNCLASSIFIED.txt", fixedColumnMessage("2020-11-24 05:15:06",
			"2020329051406.000000 100.0 200.0 300.0 1.0 2.0 3.0",
			"2020329051506.000000 160.0 320.0 480.0 1.0 2.0 3.0",
		)},
		member{"README", "ignored"},
	))
	src := DefaultSources()[1]

	stats, err := newTestRunner(t, bucket, s, nil).RunSource(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RecordsCreated)

	obj, err := store.First[store.TrackedObject](context.Background(), s, store.Where{"tracking_id": "44713"})
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, "STARLINK-1007", obj.Name)

	recs := recordsFor(t, s, "44713")
	require.Len(t, recs, 1)
	assert.Equal(t, "Starlink", recs[0].Originator)
	assert.Equal(t, "STARLINK-1007", recs[0].ObjectName)
	assert.Equal(t, "2020-11-24T05:15:06.000000", recs[0].StopTime)
}

func TestRunSourceConcurrentArtifacts(t *testing.T) {
	s := storetest.New(t)
	bucket := newMemBucket()
	for day := 1; day <= 8; day++ {
		name := fmt.Sprintf("202011%02d_block_25.tar", day)
		stop := fmt.Sprintf("2020-12-%02dT00:00:00", day)
		bucket.put(name, tarOfGzip(t, member{"25/544.gz", issMessage(stop)}))
	}
	cfg := DefaultConfig()
	cfg.Concurrency = 4

	stats, err := newTestRunner(t, bucket, s, cfg).RunSource(context.Background(), utSource)
	require.NoError(t, err)

	assert.Equal(t, 8, stats.ArtifactsImported)
	assert.Equal(t, 8, stats.RecordsCreated+stats.RecordsSuperseded+stats.RecordsSkipped)
	recs := recordsFor(t, s, "25544")
	require.Len(t, recs, 1)
	assert.Equal(t, "2020-12-08T00:00:00.000000", recs[0].StopTime)
}

var errBoom = errors.New("boom")

// failingStore fails every Create of an ephemeris record.
type failingStore struct {
	store.EntityStore
}

func (f failingStore) Create(ctx context.Context, entity any) error {
	if _, ok := entity.(*store.EphemerisRecord); ok {
		return errBoom
	}
	return f.EntityStore.Create(ctx, entity)
}

func (f failingStore) Transaction(ctx context.Context, fn func(tx store.EntityStore) error) error {
	return f.EntityStore.Transaction(ctx, func(tx store.EntityStore) error {
		return fn(failingStore{tx})
	})
}

func TestRunSourceLeavesArtifactUnimportedOnStoreFailure(t *testing.T) {
	s := storetest.New(t)
	bucket := newMemBucket()
	bucket.put("20201124_block_25.tar", tarOfGzip(t, member{"25/544.gz", issMessage("2020-11-26T00:00:00")}))
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	r := newTestRunner(t, bucket, failingStore{s}, nil, WithMetrics(metrics))
	stats, err := r.RunSource(context.Background(), utSource)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.ArtifactsFailed)
	assert.False(t, isArtifactImported(t, s, "20201124_block_25.tar"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.artifacts.WithLabelValues("UT - OEM", artifactFailed)))
}

func TestRunMetricsCountOutcomes(t *testing.T) {
	s := storetest.New(t)
	bucket := newMemBucket()
	bucket.put("20201124_block_25.tar", tarOfGzip(t, member{"25/544.gz", issMessage("2020-11-26T00:00:00")}))
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	results := newTestRunner(t, bucket, s, nil, WithMetrics(metrics)).Run(context.Background())
	require.Len(t, results, 2)
	for _, res := range results {
		assert.NoError(t, res.Err)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.artifacts.WithLabelValues("UT - OEM", artifactImported)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.records.WithLabelValues("UT - OEM", string(OutcomeCreated))))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.lastSuccess))
}

func TestRunSourceNamed(t *testing.T) {
	r := newTestRunner(t, newMemBucket(), storetest.New(t), nil)

	_, err := r.RunSourceNamed(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownSource)

	_, err = r.RunSourceNamed(context.Background(), "Starlink - OEM")
	assert.NoError(t, err)
}

func TestNewRunnerRejectsBadSources(t *testing.T) {
	_, err := NewRunner(newMemBucket(), storetest.New(t), []Source{{Name: "x", Pattern: "(", Format: FormatTarGzip}}, nil)
	assert.Error(t, err)

	_, err = NewRunner(newMemBucket(), storetest.New(t), []Source{{Name: "x", Pattern: ".", Format: "rar"}}, nil)
	assert.ErrorIs(t, err, ErrUnknownFormat)

	dup := DefaultSources()[0]
	_, err = NewRunner(newMemBucket(), storetest.New(t), []Source{dup, dup}, nil)
	assert.Error(t, err)
}
