// Package storage keeps uploaded CSV files and generated reports on local disk.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned for report names that do not resolve to a file in
// the report directory.
var ErrNotFound = errors.New("file not found")

const (
	dirPerm      = 0o755
	reportPrefix = "anomalies_"
	reportExt    = ".pdf"
	uploadExt    = ".csv"
)

// Store owns an upload directory and a report directory.
type Store struct {
	uploadDir string
	reportDir string
}

// New creates both directories if they do not exist.
func New(uploadDir, reportDir string) (*Store, error) {
	for _, dir := range []string{uploadDir, reportDir} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
		}
	}
	return &Store{uploadDir: uploadDir, reportDir: reportDir}, nil
}

// UploadDir returns the directory uploads are written to.
func (s *Store) UploadDir() string { return s.uploadDir }

// ReportDir returns the directory reports are written to.
func (s *Store) ReportDir() string { return s.reportDir }

// SaveUpload copies r to "<base>_<id>.csv" in the upload directory and returns
// the path. The random id keeps concurrent uploads of one name apart.
func (s *Store) SaveUpload(base string, r io.Reader) (string, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	path := filepath.Join(s.uploadDir, base+"_"+id+uploadExt)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("save upload: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("save upload: %w", err)
	}
	return path, nil
}

// ReportName is the download name of the report for an upload base name.
func ReportName(base string) string {
	return reportPrefix + base + reportExt
}

// ReportPath is where the report for base is written. Reports are keyed by
// base name only, so uploads sharing a name overwrite each other's report and
// the last writer wins.
func (s *Store) ReportPath(base string) string {
	return filepath.Join(s.reportDir, ReportName(base))
}

// OpenReport opens a report by its plain file name. Names with path
// components, hidden names and directories yield ErrNotFound.
func (s *Store) OpenReport(name string) (*os.File, os.FileInfo, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		strings.HasPrefix(name, ".") {
		return nil, nil, ErrNotFound
	}

	f, err := os.Open(filepath.Join(s.reportDir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("open report: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("open report: %w", err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

// Writable checks that both directories accept new files.
func (s *Store) Writable() error {
	for _, dir := range []string{s.uploadDir, s.reportDir} {
		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			return fmt.Errorf("%s not writable: %w", dir, err)
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
	}
	return nil
}
