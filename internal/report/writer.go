package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"time"
)

// FileName builds the conventional output file name for an organization:
// <org-lowercased>-all_repos-YYYYMMDDHHMM_ts.csv.
func FileName(orgName string, now time.Time) string {
	return fmt.Sprintf("%s-all_repos-%s_ts.csv", strings.ToLower(orgName), now.Format("200601021504"))
}

// Writer appends rows to the CSV output file. The header is written only
// when the file is created; reopening an existing file appends to it.
type Writer struct {
	path string
	file *os.File
	csv  *csv.Writer
}

// OpenWriter opens the row sink at path, creating it with a header row if it
// does not exist yet.
func OpenWriter(path string) (*Writer, error) {
	_, statErr := os.Stat(path)
	exists := statErr == nil

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // Path derives from the org name or a flag
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	w := &Writer{path: path, file: file, csv: csv.NewWriter(file)}

	if !exists {
		if err := w.csv.Write(Columns); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		w.csv.Flush()
		if err := w.csv.Error(); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to flush header: %w", err)
		}
	}

	return w, nil
}

// Path returns the location of the output file.
func (w *Writer) Path() string { return w.path }

// WriteRow appends one row and flushes it to disk so a crash never loses an
// acknowledged row.
func (w *Writer) WriteRow(row Row) error {
	if err := w.csv.Write(row.Values()); err != nil {
		return fmt.Errorf("failed to write row for %s: %w", row.RepoName, err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("failed to flush row for %s: %w", row.RepoName, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync output file: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("failed to flush output file: %w", err)
	}
	return w.file.Close()
}

// ReadRepoNames reads the Repo_Name column of an existing output file into a
// set, for the missing-repo audit.
func ReadRepoNames(path string) (map[string]struct{}, error) {
	file, err := os.Open(path) //nolint:gosec // Path comes from a command-line flag
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse output file: %w", err)
	}
	if len(records) == 0 {
		return map[string]struct{}{}, nil
	}

	nameIndex := -1
	for i, column := range records[0] {
		if column == "Repo_Name" {
			nameIndex = i
			break
		}
	}
	if nameIndex < 0 {
		return nil, fmt.Errorf("output file %s has no Repo_Name column", path)
	}

	names := make(map[string]struct{}, len(records)-1)
	for _, record := range records[1:] {
		if nameIndex < len(record) && record[nameIndex] != "" {
			names[record[nameIndex]] = struct{}{}
		}
	}
	return names, nil
}
