// internal/reporting/reporter.go

// Package reporting writes diagnostic attachments for unrecoverable failures:
// a screenshot of the page and a JSON record of where the browser was.
package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wardrunner/api/schemas"
	"github.com/xkilldash9x/wardrunner/internal/browser/driver"
	"github.com/xkilldash9x/wardrunner/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const captureTimeout = 15 * time.Second

// Reporter records the state of a browser after an unrecoverable failure.
type Reporter interface {
	// Attach captures drv's current page for role and returns the path of the
	// written record.
	Attach(ctx context.Context, drv driver.Driver, role schemas.RoleID, cause error) (string, error)
}

// Failure is the JSON record written next to each screenshot.
type Failure struct {
	Role       schemas.RoleID `json:"role"`
	URL        string         `json:"url,omitempty"`
	Error      string         `json:"error"`
	Timestamp  time.Time      `json:"timestamp"`
	Screenshot string         `json:"screenshot,omitempty"`
	// CaptureErrors lists what could not be collected.
	CaptureErrors []string `json:"capture_errors,omitempty"`
}

// New returns a FileReporter under cfg.Dir, or a no-op reporter when
// reporting is disabled.
func New(cfg config.ReportConfig, logger *zap.Logger) (Reporter, error) {
	if !cfg.Enabled {
		return nopReporter{}, nil
	}
	return NewFileReporter(cfg.Dir, logger)
}

type nopReporter struct{}

func (nopReporter) Attach(context.Context, driver.Driver, schemas.RoleID, error) (string, error) {
	return "", nil
}

// FileReporter writes <role>-<timestamp>.png and .json files into a directory.
type FileReporter struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewFileReporter creates dir, expanding a leading "~", if it does not exist.
func NewFileReporter(dir string, logger *zap.Logger) (*FileReporter, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand report dir %q: %w", dir, err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report dir %s: %w", expanded, err)
	}
	return &FileReporter{dir: expanded, logger: logger.Named("reporter"), now: time.Now}, nil
}

// Dir returns the directory attachments are written to.
func (r *FileReporter) Dir() string { return r.dir }

func (r *FileReporter) Attach(ctx context.Context, drv driver.Driver, role schemas.RoleID, cause error) (string, error) {
	// The failure that triggered us may have been the caller's deadline.
	captureCtx, cancel := context.WithTimeout(driver.Detach(ctx), captureTimeout)
	defer cancel()

	rec := Failure{Role: role, Timestamp: r.now().UTC()}
	if cause != nil {
		rec.Error = cause.Error()
	}
	stamp := strings.ReplaceAll(rec.Timestamp.Format("20060102T150405.000"), ".", "")
	base := filepath.Join(r.dir, fmt.Sprintf("%s-%s", role, stamp))

	var errs error
	if url, err := drv.CurrentURL(captureCtx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("current url: %w", err))
	} else {
		rec.URL = url
	}

	if png, err := drv.Screenshot(captureCtx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("screenshot: %w", err))
	} else {
		path := base + ".png"
		if err := os.WriteFile(path, png, 0o644); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("write screenshot: %w", err))
		} else {
			rec.Screenshot = filepath.Base(path)
		}
	}
	for _, e := range multierr.Errors(errs) {
		rec.CaptureErrors = append(rec.CaptureErrors, e.Error())
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode failure record: %w", err)
	}
	path := base + ".json"
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write failure record: %w", err)
	}

	r.logger.Info("Failure attachment written.",
		zap.Stringer("role", role),
		zap.String("path", path),
		zap.String("url", rec.URL),
		zap.Int("capture_errors", len(rec.CaptureErrors)))
	return path, nil
}
