// Package cli provides output helpers for the embedapi commands.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/embedapi/internal/batch"
	"github.com/hyperjump/embedapi/internal/models"
	"github.com/hyperjump/embedapi/pkg/utils"
)

// OutputFormat selects how status output is rendered.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ErrOutputExists is returned when the records file is already present.
var ErrOutputExists = errors.New("output file already exists")

// WriteRecords writes records to w as an indented JSON array. A nil slice is
// written as [].
func WriteRecords(w io.Writer, records []models.Record) error {
	if records == nil {
		records = []models.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteRecordsFile creates path and writes records to it. An existing file
// is never overwritten.
func WriteRecordsFile(path string, records []models.Record) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", path, ErrOutputExists)
		}
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	return WriteRecords(f, records)
}

// WriteStatus writes a status response in the given format. Unknown formats
// fall back to text.
func WriteStatus(w io.Writer, status *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	fmt.Fprintln(w, "Backends:")
	if len(status.Backends) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, b := range status.Backends {
		fmt.Fprintf(w, "  %-8s %s (%d dims)\n", b.ID, b.Model, b.Dimensions)
	}
	c := status.Cache
	if c.Enabled {
		fmt.Fprintf(w, "Cache: %d/%d entries, %d hits, %d misses, %d evictions\n",
			c.Size, c.Capacity, c.Hits, c.Misses, c.Evictions)
	} else {
		fmt.Fprintln(w, "Cache: disabled")
	}
	if a := status.Archive; a != nil {
		fmt.Fprintf(w, "Archive: %d entries", a.Entries)
		if a.DatabasePath != "" {
			fmt.Fprintf(w, " in %s", a.DatabasePath)
		}
		if a.DiskUsageBytes != nil {
			fmt.Fprintf(w, " (%s)", FormatBytes(*a.DiskUsageBytes))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteReport prints a one-run summary, with the first failed item if any.
func WriteReport(w io.Writer, report *batch.Report, output string) {
	fmt.Fprintf(w, "Run %s: %d records from %d chunks in %s\n",
		report.RunID, len(report.Records), report.Chunks,
		report.Finished.Sub(report.Started).Round(time.Millisecond))
	if report.FailedChunks > 0 {
		fmt.Fprintf(w, "  %d chunk(s) failed and were skipped\n", report.FailedChunks)
	}
	if report.FailedItems > 0 {
		fmt.Fprintf(w, "  %d item(s) failed\n", report.FailedItems)
		for _, r := range report.Records {
			if r.Metadata.Status != models.StatusSuccess {
				fmt.Fprintf(w, "  first failure: %q: %s\n", utils.Truncate(r.Text, 60), r.Metadata.Message)
				break
			}
		}
	}
	if output != "" {
		fmt.Fprintf(w, "Wrote %s\n", output)
	}
}

// FormatBytes renders n using binary units.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
