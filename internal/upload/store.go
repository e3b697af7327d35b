// Package upload stores files pushed through the file_upload tool. Each file
// is validated and written independently, so one bad file never blocks its
// siblings.
package upload

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reconciliation-task-service/pkg/errors"
	"reconciliation-task-service/pkg/logger"

	"github.com/google/uuid"
)

// Config controls where and what the store accepts.
type Config struct {
	// Dir is the upload root.
	Dir string
	// MaxBytes caps a single file's decoded size.
	MaxBytes int64
	// AllowedExtensions is the lower-cased whitelist, dots included.
	AllowedExtensions []string
	// DatePartition stores files under <dir>/YYYY/MM/DD/ with collision
	// suffixes instead of flat uuid-prefixed names.
	DatePartition bool
}

// DefaultConfig returns the service defaults.
func DefaultConfig() Config {
	return Config{
		Dir:               "./uploads",
		MaxBytes:          100 * 1024 * 1024,
		AllowedExtensions: []string{".csv", ".xlsx", ".xls"},
	}
}

// FileInput is one file in a file_upload request. Exactly one of Data and
// Base64 carries the payload; Data wins when both are set.
type FileInput struct {
	Filename  string
	Data      string
	Base64    string
	MimeType  string
	RelatedID string
}

// FileResult is the per-file outcome. Failed files carry Error and no path.
type FileResult struct {
	Filename string `json:"filename"`
	Path     string `json:"path,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Store writes uploaded files to disk.
type Store struct {
	cfg Config
	log logger.Logger

	// now is swapped in tests to pin date partitions.
	now func() time.Time
}

// NewStore creates a store. Zero-value config fields fall back to defaults.
func NewStore(cfg Config) *Store {
	def := DefaultConfig()
	if cfg.Dir == "" {
		cfg.Dir = def.Dir
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = def.AllowedExtensions
	}
	return &Store{
		cfg: cfg,
		log: logger.GetGlobalLogger().WithComponent("upload"),
		now: time.Now,
	}
}

// Save stores every input and returns one result per input, in order.
func (s *Store) Save(files []FileInput) []FileResult {
	results := make([]FileResult, 0, len(files))
	for _, f := range files {
		results = append(results, s.saveOne(f))
	}
	return results
}

func (s *Store) saveOne(f FileInput) FileResult {
	result := FileResult{Filename: f.Filename}

	name, err := s.sanitize(f.Filename)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	payload, err := s.decode(f)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	path, err := s.place(name)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if err := os.WriteFile(path, payload, 0644); err != nil {
		result.Error = errors.FileError(errors.CodeFilePermission, path, err).Error()
		return result
	}

	s.log.WithFields(logger.Fields{
		"filename": f.Filename,
		"path":     path,
		"bytes":    len(payload),
	}).Info("File stored")

	result.Path = path
	result.Size = int64(len(payload))
	return result
}

// sanitize reduces the client-supplied name to a safe base name and checks
// the extension whitelist.
func (s *Store) sanitize(filename string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "", errors.FileError(errors.CodeUnsupportedType, filename, nil)
	}

	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range s.cfg.AllowedExtensions {
		if ext == allowed {
			return name, nil
		}
	}
	return "", errors.FileError(errors.CodeUnsupportedType, filename, nil)
}

// decode extracts the payload from data or base64 and enforces the size cap.
func (s *Store) decode(f FileInput) ([]byte, error) {
	var payload []byte
	switch {
	case f.Data != "":
		payload = []byte(f.Data)
	case f.Base64 != "":
		decoded, err := base64.StdEncoding.DecodeString(f.Base64)
		if err != nil {
			return nil, errors.FileError(errors.CodeDecodeFailed, f.Filename, err)
		}
		payload = decoded
	default:
		return nil, errors.FileError(errors.CodeDecodeFailed, f.Filename, nil)
	}

	if int64(len(payload)) > s.cfg.MaxBytes {
		return nil, errors.FileError(errors.CodeDecodeFailed, f.Filename, nil).
			WithContext("size", len(payload)).
			WithContext("max_bytes", s.cfg.MaxBytes)
	}
	return payload, nil
}

// place picks the on-disk path and creates its directory. The default layout
// prefixes a fresh uuid so repeated names never collide; the date-partition
// layout keeps the original name and disambiguates with a timestamp suffix.
func (s *Store) place(name string) (string, error) {
	if !s.cfg.DatePartition {
		prefix := strings.ReplaceAll(uuid.New().String(), "-", "")
		if err := os.MkdirAll(s.cfg.Dir, 0755); err != nil {
			return "", errors.FileError(errors.CodeDirectoryError, s.cfg.Dir, err)
		}
		return filepath.Join(s.cfg.Dir, prefix+"_"+name), nil
	}

	now := s.now()
	dir := filepath.Join(s.cfg.Dir, now.Format("2006"), now.Format("01"), now.Format("02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.FileError(errors.CodeDirectoryError, dir, err)
	}

	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, now.Format("150405"), ext)), nil
}
