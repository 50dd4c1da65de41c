package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
)

var (
	ErrNoDownload = errors.New("no new file appeared in the download directory")
	ErrUnstable   = errors.New("download size did not settle")
)

var inProgressExt = map[string]bool{
	".crdownload": true,
	".part":       true,
	".partial":    true,
	".download":   true,
	".tmp":        true,
}

type Config struct {
	PollInterval      time.Duration
	WaitTimeout       time.Duration
	StabilityInterval time.Duration
	StabilityTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:      500 * time.Millisecond,
		WaitTimeout:       30 * time.Second,
		StabilityInterval: 500 * time.Millisecond,
		StabilityTimeout:  10 * time.Second,
	}
}

// Capturer finds the file a browser action drops into a watched directory
// and moves it to its final place.
type Capturer struct {
	cfg     Config
	logger  output.LoggerPort
	metrics output.MetricsPort
}

func New(cfg Config, logger output.LoggerPort, metrics output.MetricsPort) *Capturer {
	return &Capturer{cfg: cfg, logger: logger, metrics: metrics}
}

// Capture snapshots watchDir, runs trigger and relocates the new file to
// dest. Only trigger errors are returned. A missing or empty download is
// logged and leaves mem untouched, so the returned path is empty.
func (c *Capturer) Capture(
	ctx context.Context,
	mem *entity.Memory,
	watchDir, dest string,
	trigger func(ctx context.Context) error,
) (string, error) {
	before, err := listDir(watchDir)
	if err != nil {
		c.log(ctx).Warn("Cannot snapshot download directory", "dir", watchDir, "error", err)
		before = map[string]time.Time{}
	}

	if err := trigger(ctx); err != nil {
		return "", err
	}

	candidate, err := c.waitForFile(ctx, mem, watchDir, before)
	if err != nil {
		c.log(ctx).Error("Download not captured", "dir", watchDir, "error", err)
		c.metrics.IncDownload("missing")
		return "", nil
	}
	c.log(ctx).Debug("Download candidate found", "path", candidate)

	if err := c.waitStable(ctx, candidate); err != nil {
		c.log(ctx).Warn("Download may be incomplete", "path", candidate, "error", err)
		c.metrics.IncDownload("unstable")
	}

	final, err := relocate(candidate, dest)
	if err != nil {
		c.log(ctx).Error("Cannot move download", "from", candidate, "to", dest, "error", err)
		c.metrics.IncDownload("failed")
		return "", nil
	}

	info, err := os.Stat(final)
	if err != nil || info.Size() == 0 {
		c.log(ctx).Error("Download is missing or empty", "path", final)
		c.metrics.IncDownload("empty")
		return "", nil
	}

	mem.RecordDownload(final)
	c.metrics.IncDownload("recorded")
	c.log(ctx).Info("Download saved", "path", final, "size", info.Size())

	if err := CleanCSV(final); err != nil {
		c.log(ctx).Warn("Cannot clean csv download", "path", final, "error", err)
	}
	return final, nil
}

// waitForFile polls dir until a finished file appears that was not present
// before and is not claimed by another attempt. The newest one wins.
func (c *Capturer) waitForFile(ctx context.Context, mem *entity.Memory, dir string, before map[string]time.Time) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.WaitTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if path := newestCandidate(mem, dir, before); path != "" && mem.ClaimDownload(path) {
			return path, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w within %s", ErrNoDownload, c.cfg.WaitTimeout)
		case <-ticker.C:
		}
	}
}

func newestCandidate(mem *entity.Memory, dir string, before map[string]time.Time) string {
	now, err := listDir(dir)
	if err != nil {
		return ""
	}
	var (
		best     string
		bestTime time.Time
	)
	for name, mtime := range now {
		if _, seen := before[name]; seen {
			continue
		}
		if inProgressExt[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		path := filepath.Join(dir, name)
		if mem.IsClaimed(path) {
			continue
		}
		if best == "" || mtime.After(bestTime) {
			best, bestTime = path, mtime
		}
	}
	return best
}

// waitStable returns nil once two consecutive polls see the same nonzero size.
func (c *Capturer) waitStable(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StabilityTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.StabilityInterval)
	defer ticker.Stop()

	last := int64(-1)
	for {
		info, err := os.Stat(path)
		if err == nil {
			size := info.Size()
			if size > 0 && size == last {
				return nil
			}
			last = size
		}
		select {
		case <-ctx.Done():
			return ErrUnstable
		case <-ticker.C:
		}
	}
}

func listDir(dir string) (map[string]time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out[e.Name()] = info.ModTime()
	}
	return out, nil
}

// Destination resolves the final path of a download. A UUID stem is
// replaced by the discovered name and a missing extension is taken from it.
func Destination(found, dest string) string {
	ext := filepath.Ext(dest)
	stem := strings.TrimSuffix(filepath.Base(dest), ext)
	if _, err := uuid.Parse(stem); err == nil {
		return filepath.Join(filepath.Dir(dest), filepath.Base(found))
	}
	if ext == "" {
		return dest + filepath.Ext(found)
	}
	return dest
}

func relocate(found, dest string) (string, error) {
	final := Destination(found, dest)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(found, final); err == nil {
		return final, nil
	}
	if err := copyFile(found, final); err != nil {
		return "", err
	}
	_ = os.Remove(found)
	return final, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CleanCSV drops everything up to the last closing script tag, which some
// sites prepend to exported CSV files.
func CleanCSV(path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	const tag = "</script>"
	idx := strings.LastIndex(string(data), tag)
	if idx < 0 {
		return nil
	}
	return os.WriteFile(path, data[idx+len(tag):], 0o644)
}

func (c *Capturer) log(ctx context.Context) output.LoggerPort {
	return output.LoggerFromContext(ctx, c.logger)
}
