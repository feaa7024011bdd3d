// Package reportcache implements the content-keyed report disk cache:
// one finalized report JSON per (userId, dumpId), with the llmKey recorded
// in its metadata, gated on read by schema version, requirement flags and
// llmKey match. A Put under a different llmKey replaces the entry.
package reportcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dumpscope/dumpscope/pkg/report"
)

// LLMKey identifies which model configuration produced the cached AI
// analysis. Put and Get normalize it (trimmed, lowercase) before storing or
// comparing.
type LLMKey struct {
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	ReasoningEffort string `json:"reasoningEffort"`
}

// Normalize lowercases every component.
func (k LLMKey) Normalize() LLMKey {
	return LLMKey{
		Provider:        strings.ToLower(strings.TrimSpace(k.Provider)),
		Model:           strings.ToLower(strings.TrimSpace(k.Model)),
		ReasoningEffort: strings.ToLower(strings.TrimSpace(k.ReasoningEffort)),
	}
}

// Key addresses one cache entry.
type Key struct {
	UserID string
	DumpID string
	LLM    *LLMKey // nil for reports without AI analysis
}

// Meta is the sibling metadata file gating cache reads.
type Meta struct {
	SchemaVersion      int       `json:"schemaVersion"`
	RequireWatches     bool      `json:"requireWatches"`
	RequireSecurity    bool      `json:"requireSecurity"`
	RequireAllFrames   bool      `json:"requireAllFrames"`
	IncludesAiAnalysis bool      `json:"includesAiAnalysis"`
	LLMKey             *LLMKey   `json:"llmKey,omitempty"`
	WrittenAt          time.Time `json:"writtenAt"`
}

// Requirements is what a reader demands of a cached entry. A cached entry
// satisfies a requirement only when its meta flag is set.
type Requirements struct {
	SchemaVersion      int
	RequireWatches     bool
	RequireSecurity    bool
	RequireAllFrames   bool
	IncludesAiAnalysis bool
}

// Cache is the on-disk report cache rooted at Root.
type Cache struct {
	Root string
	log  *slog.Logger
}

// New creates a cache over root. The directory is created lazily on Put.
func New(root string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{Root: root, log: logger}
}

func sanitizePathComponent(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, string(os.PathSeparator), "_")
	s = strings.ReplaceAll(s, "..", "_")
	if s == "" {
		s = "_"
	}
	return s
}

// entryDir is <root>/<userId>/<dumpId>/ai-analysis.
func (c *Cache) entryDir(key Key) string {
	return filepath.Join(c.Root, sanitizePathComponent(key.UserID), sanitizePathComponent(key.DumpID), "ai-analysis")
}

func (c *Cache) reportPath(key Key) string { return filepath.Join(c.entryDir(key), "report.json") }
func (c *Cache) metaPath(key Key) string   { return filepath.Join(c.entryDir(key), "report.meta.json") }

// Put writes the report and its metadata. The report must already be
// finalized — the cache never mutates it.
func (c *Cache) Put(key Key, r *report.Report, meta Meta) error {
	dir := c.entryDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	if key.LLM != nil {
		normalized := key.LLM.Normalize()
		meta.LLMKey = &normalized
	}
	meta.WrittenAt = time.Now().UTC()

	if err := writeJSONAtomic(c.reportPath(key), r); err != nil {
		return err
	}
	if err := writeJSONAtomic(c.metaPath(key), meta); err != nil {
		return err
	}
	c.log.Debug("cached report", "user", key.UserID, "dump", key.DumpID, "schema", meta.SchemaVersion)
	return nil
}

// Get reads a cached report if its metadata satisfies reqs. A schema
// version mismatch, a missing required flag, or an llmKey mismatch all
// return (nil, false, nil) — a cache miss, not an error.
func (c *Cache) Get(key Key, reqs Requirements) (*report.Report, bool, error) {
	metaData, err := os.ReadFile(c.metaPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache metadata: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		c.log.Debug("cache metadata unreadable, treating as miss", "error", err)
		return nil, false, nil
	}

	if meta.SchemaVersion != reqs.SchemaVersion {
		c.log.Debug("cache schema version mismatch", "cached", meta.SchemaVersion, "required", reqs.SchemaVersion)
		return nil, false, nil
	}
	if reqs.RequireWatches && !meta.RequireWatches {
		return nil, false, nil
	}
	if reqs.RequireSecurity && !meta.RequireSecurity {
		return nil, false, nil
	}
	if reqs.RequireAllFrames && !meta.RequireAllFrames {
		return nil, false, nil
	}
	if reqs.IncludesAiAnalysis && !meta.IncludesAiAnalysis {
		return nil, false, nil
	}
	if key.LLM != nil {
		want := key.LLM.Normalize()
		if meta.LLMKey == nil || *meta.LLMKey != want {
			return nil, false, nil
		}
	}

	reportData, err := os.ReadFile(c.reportPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached report: %w", err)
	}
	var r report.Report
	if err := json.Unmarshal(reportData, &r); err != nil {
		c.log.Debug("cached report unreadable, treating as miss", "error", err)
		return nil, false, nil
	}
	return &r, true, nil
}

// Invalidate removes one cache entry. Missing entries are not an error.
func (c *Cache) Invalidate(key Key) error {
	if err := os.RemoveAll(c.entryDir(key)); err != nil {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return nil
}

// writeJSONAtomic writes via a temp file + rename so readers never observe
// a partial file.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
