// Package importer pulls ephemeris archives out of a bucket, parses them and
// stores the newest record per tracked object and data source.
package importer

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Format names an archive layout and the parser for its members.
type Format string

const (
	// FormatTarGzip is a tar of gzip members, each a key/value ephemeris.
	FormatTarGzip Format = "tar-gzip"
	// FormatZipFixedColumn is a zip of .txt fixed-column ephemerides.
	FormatZipFixedColumn Format = "zip-fixed-column"
)

// ErrUnknownFormat is returned for a source with an unsupported format.
var ErrUnknownFormat = errors.New("unknown archive format")

const maxSourcesFileSize = 1 << 20

// Source describes one ingestion feed.
type Source struct {
	// Name is the provenance data source name records are tagged with.
	Name string `yaml:"name"`
	// Public data sources are granted to every principal created afterwards.
	Public bool `yaml:"public"`
	// Pattern selects the feed's artifacts. It matches anywhere in the
	// object name.
	Pattern string `yaml:"pattern"`
	Format  Format `yaml:"format"`

	pattern *regexp.Regexp
}

// SourcesFile is the YAML document listing the feeds.
type SourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// DefaultSources returns the two built-in feeds.
func DefaultSources() []Source {
	return []Source{
		{Name: "UT - OEM", Public: true, Pattern: `[0-9]{8}_block_[0-9]{2}.tar`, Format: FormatTarGzip},
		{Name: "Starlink - OEM", Public: true, Pattern: `[0-9]{20}.oem`, Format: FormatZipFixedColumn},
	}
}

// LoadSources reads a sources file. An empty path yields DefaultSources.
func LoadSources(path string) ([]Source, error) {
	if path == "" {
		return DefaultSources(), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	if info.Size() > maxSourcesFileSize {
		return nil, fmt.Errorf("sources file %s exceeds %d bytes", path, maxSourcesFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	var f SourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("sources file %s lists no sources", path)
	}
	seen := make(map[string]bool, len(f.Sources))
	for i := range f.Sources {
		if err := f.Sources[i].compile(); err != nil {
			return nil, err
		}
		if seen[f.Sources[i].Name] {
			return nil, fmt.Errorf("duplicate source %q", f.Sources[i].Name)
		}
		seen[f.Sources[i].Name] = true
	}
	return f.Sources, nil
}

func (s *Source) compile() error {
	if s.Name == "" {
		return fmt.Errorf("source without a name")
	}
	if _, err := expanderFor(s.Format); err != nil {
		return fmt.Errorf("source %q: %w", s.Name, err)
	}
	re, err := regexp.Compile(s.Pattern)
	if err != nil {
		return fmt.Errorf("source %q: invalid pattern: %w", s.Name, err)
	}
	s.pattern = re
	return nil
}

// Matches reports whether the object name belongs to this source.
func (s *Source) Matches(name string) bool {
	if s.pattern == nil {
		ok, err := regexp.MatchString(s.Pattern, name)
		return err == nil && ok
	}
	return s.pattern.MatchString(name)
}

// Filter returns the names that belong to this source, in order.
func (s *Source) Filter(names []string) []string {
	var out []string
	for _, n := range names {
		if s.Matches(n) {
			out = append(out, n)
		}
	}
	return out
}
