package orchestrator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// traceWriter persists sampling trace files under a timestamped run
// directory: iter-NNNN-request.json,
// iter-NNNN-response.json, final-ai-analysis.json. Files past maxFileBytes
// are truncated with a byte-count marker.
type traceWriter struct {
	dir      string
	maxBytes int
	log      *slog.Logger
}

// newTraceWriter creates the run directory eagerly so a failed mkdir is
// reported once rather than on every write.
func newTraceWriter(baseDir string, maxBytes int, log *slog.Logger) *traceWriter {
	if baseDir == "" {
		baseDir = "."
	}
	dir := filepath.Join(baseDir, "run-"+time.Now().Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn("failed to create sampling trace directory", "dir", dir, "error", err)
		return nil
	}
	return &traceWriter{dir: dir, maxBytes: maxBytes, log: log}
}

func (w *traceWriter) writeJSON(name string, v any) {
	if w == nil {
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		w.log.Warn("failed to marshal trace file", "file", name, "error", err)
		return
	}
	if w.maxBytes > 0 && len(data) > w.maxBytes {
		marker := fmt.Sprintf("\n[truncated, totalBytes=%d]", len(data))
		data = append(data[:w.maxBytes], marker...)
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		w.log.Warn("failed to write trace file", "file", path, "error", err)
	}
}

func (w *traceWriter) writeRequest(seq int, v any) {
	w.writeJSON(fmt.Sprintf("iter-%04d-request.json", seq), v)
}

func (w *traceWriter) writeResponse(seq int, v any) {
	w.writeJSON(fmt.Sprintf("iter-%04d-response.json", seq), v)
}

func (w *traceWriter) writeFinal(v any) {
	w.writeJSON("final-ai-analysis.json", v)
}
