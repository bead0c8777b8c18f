// Package report reads and writes the skipped pages report of a run.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"company_spider/internal/models"
)

// Save overwrites path with the report as indented JSON. Non-ASCII text is
// written as is.
func Save(path string, r models.SkippedPagesReport) error {
	normalized := make(models.SkippedPagesReport, len(r))
	for category, info := range r {
		if info.SkippedPages == nil {
			info.SkippedPages = []int{}
		}
		normalized[category] = info
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(normalized); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

func Load(path string) (models.SkippedPagesReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r models.SkippedPagesReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	if r == nil {
		r = models.SkippedPagesReport{}
	}
	return r, nil
}
