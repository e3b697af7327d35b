// Package reporter persists result artifacts as JSON files on disk. One
// artifact per task, named after the task ID, so results survive restarts
// and can be fetched again at any time.
package reporter

import (
	"encoding/json"
	"os"
	"path/filepath"

	"reconciliation-task-service/internal/models"
	"reconciliation-task-service/pkg/errors"
	"reconciliation-task-service/pkg/logger"
)

// Reporter writes result artifacts under a results directory.
type Reporter struct {
	dir string
	log logger.Logger
}

// New creates a reporter rooted at dir. The directory is created on first
// write, not here, so constructing a reporter never touches the filesystem.
func New(dir string) *Reporter {
	return &Reporter{
		dir: dir,
		log: logger.GetGlobalLogger().WithComponent("reporter"),
	}
}

// Write persists the result as <dir>/<task_id>.json, pretty-printed, and
// returns the artifact path.
func (r *Reporter) Write(result *models.Result) (string, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", errors.FileError(errors.CodeDirectoryError, r.dir, err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", errors.InternalError(errors.CodeUnexpectedError, "marshal result artifact", err)
	}

	path := filepath.Join(r.dir, result.TaskID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.FileError(errors.CodeFilePermission, path, err)
	}

	r.log.WithFields(logger.Fields{
		"task_id": result.TaskID,
		"path":    path,
		"bytes":   len(data),
	}).Debug("Result artifact written")
	return path, nil
}

// Read loads a previously written artifact. Missing artifacts return
// task_not_found so callers can distinguish "never completed" from disk
// faults.
func (r *Reporter) Read(taskID string) (*models.Result, error) {
	path := filepath.Join(r.dir, taskID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.TaskError(errors.CodeTaskNotFound, taskID, err)
		}
		return nil, errors.ParseError(errors.CodeReadFailed, path, err)
	}

	var result models.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, err)
	}
	return &result, nil
}
