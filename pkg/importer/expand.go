package importer

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/IBM/arcade/pkg/oem"
)

// maxMemberSize bounds a single decompressed archive member.
var maxMemberSize int64 = 256 << 20

// ErrMemberTooLarge is returned for an archive member that decompresses to
// more than maxMemberSize bytes.
var ErrMemberTooLarge = errors.New("archive member too large")

// Parsed is one record extracted from an archive member, with the identity
// of the tracked object it describes.
type Parsed struct {
	Member     string
	TrackingID string
	Record     *oem.Record
}

// Expander turns a downloaded artifact into parsed records. Any member that
// fails to parse fails the whole artifact.
type Expander interface {
	Expand(ctx context.Context, data []byte) ([]Parsed, error)
}

// ExpanderFunc adapts a function to Expander.
type ExpanderFunc func(ctx context.Context, data []byte) ([]Parsed, error)

func (f ExpanderFunc) Expand(ctx context.Context, data []byte) ([]Parsed, error) {
	return f(ctx, data)
}

func expanderFor(f Format) (Expander, error) {
	switch f {
	case FormatTarGzip:
		return ExpanderFunc(expandTarGzip), nil
	case FormatZipFixedColumn:
		return ExpanderFunc(expandZipFixedColumn), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

func expandTarGzip(ctx context.Context, data []byte) ([]Parsed, error) {
	var out []Parsed
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, ".gz") {
			continue
		}
		rec, err := parseGzipMember(tr)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", hdr.Name, err)
		}
		out = append(out, Parsed{Member: hdr.Name, TrackingID: TrackingIDFromMemberPath(hdr.Name), Record: rec})
	}
	return out, nil
}

func parseGzipMember(r io.Reader) (*oem.Record, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()
	body, err := readMember(gz)
	if err != nil {
		return nil, err
	}
	return oem.ParseCCSDS(bytes.NewReader(body))
}

// readMember reads a whole member, failing instead of truncating when it
// exceeds maxMemberSize.
func readMember(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxMemberSize+1))
	if err != nil {
		return nil, fmt.Errorf("read member: %w", err)
	}
	if int64(len(body)) > maxMemberSize {
		return nil, fmt.Errorf("%w: over %d bytes", ErrMemberTooLarge, maxMemberSize)
	}
	return body, nil
}

// TrackingIDFromMemberPath derives a tracking id from a member path such as
// "25/544.gz": the stem is zero padded to three digits and prefixed with the
// parent directory name. A five character stem is already a full id.
func TrackingIDFromMemberPath(member string) string {
	clean := path.Clean(strings.TrimPrefix(member, "./"))
	stem := strings.SplitN(path.Base(clean), ".", 2)[0]
	if len(stem) < 3 {
		stem = strings.Repeat("0", 3-len(stem)) + stem
	}
	if len(stem) == 5 {
		return stem
	}
	prefix := path.Base(path.Dir(clean))
	if prefix == "." || prefix == "/" {
		prefix = ""
	}
	return prefix + stem
}

func expandZipFixedColumn(ctx context.Context, data []byte) ([]Parsed, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read zip: %w", err)
	}
	var out []Parsed
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ".txt") {
			continue
		}
		trackingID, name, err := IdentityFromFixedColumnName(f.Name)
		if err != nil {
			return nil, err
		}
		rec, err := parseZipMember(f)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", f.Name, err)
		}
		rec.ObjectName = name
		out = append(out, Parsed{Member: f.Name, TrackingID: trackingID, Record: rec})
	}
	return out, nil
}

func parseZipMember(f *zip.File) (*oem.Record, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip member: %w", err)
	}
	defer rc.Close()
	body, err := readMember(rc)
	if err != nil {
		return nil, err
	}
	return oem.ParseFixedColumn(bytes.NewReader(body))
}

// IdentityFromFixedColumnName reads the tracking id and display name from a
// member name of the form MEME_<id>_<name>_....txt.
func IdentityFromFixedColumnName(member string) (trackingID, name string, err error) {
	parts := strings.Split(path.Base(member), "_")
	if len(parts) < 3 || parts[1] == "" {
		return "", "", fmt.Errorf("member %s: %w: expected <prefix>_<id>_<name>", member, oem.ErrMalformedLine)
	}
	return parts[1], strings.TrimSuffix(parts[2], ".txt"), nil
}
