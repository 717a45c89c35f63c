package importer

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ccsdsMessage renders a key/value ephemeris with one state at start and one
// at stop.
func ccsdsMessage(name, id, start, stop string) string {
	return fmt.Sprintf(`CCSDS_OEM_VERS = 2.0
CREATION_DATE = 2020-11-24T05:14:06
ORIGINATOR = UT
META_START
OBJECT_NAME = %[1]s
OBJECT_ID = %[2]s
CENTER_NAME = EARTH
REF_FRAME = EME2000
TIME_SYSTEM = UTC
START_TIME = %[3]s
STOP_TIME = %[4]s
META_STOP
%[3]s -2496.1 5283.3 3403.2 -5.1 -4.3 2.9
%[4]s -2799.4 5015.1 3565.6 -4.9 -4.6 2.5
`, name, id, start, stop)
}

func issMessage(stop string) string {
	return ccsdsMessage("ISS (ZARYA)", "1998-067A", "2020-11-24T00:00:00", stop)
}

type member struct {
	name string
	body string
}

// tarOfGzip builds a tar archive whose members are gzip-compressed.
func tarOfGzip(t *testing.T, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, m := range members {
		var gz bytes.Buffer
		zw := gzip.NewWriter(&gz)
		_, err := zw.Write([]byte(m.body))
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     m.name,
			Mode:     0o644,
			Size:     int64(gz.Len()),
			Typeflag: tar.TypeReg,
		}))
		_, err = tw.Write(gz.Bytes())
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func zipOf(t *testing.T, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(m.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// fixedColumnMessage renders a fixed-column ephemeris whose span ends at stop
// ("2006-01-02 15:04:05"), followed by the given state lines.
func fixedColumnMessage(stop string, states ...string) string {
	var b strings.Builder
	b.WriteString("created:2020-11-24 05:14:06 UTC\n")
	b.WriteString("ephemeris_start:2020-11-24 05:14:06 UTC ephemeris_stop:" + stop + " UTC step_size:60\n")
	b.WriteString("ephemeris_source:blend\n")
	b.WriteString("ref_frame:EME2000\n")
	for _, s := range states {
		b.WriteString(s + "\n")
		for i := 0; i < 3; i++ {
			b.WriteString("1.0e-06 2.0e-06 3.0e-06 4.0e-06 5.0e-06 6.0e-06 7.0e-06\n")
		}
	}
	return b.String()
}

// memBucket is an in-memory archive bucket. Names listed in missing are
// reported by ListNames but cannot be downloaded.
type memBucket struct {
	mu      sync.Mutex
	name    string
	objects map[string][]byte
	missing map[string]bool
	block   map[string]bool

	// listDelay slows every ListNames call down.
	listDelay time.Duration
	downloads map[string]int
}

func newMemBucket() *memBucket {
	return &memBucket{
		name:      "arcade-oem",
		objects:   map[string][]byte{},
		missing:   map[string]bool{},
		block:     map[string]bool{},
		downloads: map[string]int{},
	}
}

func (b *memBucket) put(name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[name] = data
}

func (b *memBucket) Name() string { return b.name }

func (b *memBucket) ListNames(context.Context) []string {
	time.Sleep(b.listDelay)
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for n := range b.objects {
		names = append(names, n)
	}
	for n := range b.missing {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (b *memBucket) Download(ctx context.Context, name string) ([]byte, bool) {
	b.mu.Lock()
	b.downloads[name]++
	blocked := b.block[name]
	data, ok := b.objects[name]
	b.mu.Unlock()
	if blocked {
		<-ctx.Done()
		return nil, false
	}
	return data, ok
}

func (b *memBucket) downloadCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.downloads[name]
}
