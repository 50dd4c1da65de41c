package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"optexity/internal/domain/entity"
	"optexity/internal/infrastructure/logger"
	"optexity/internal/infrastructure/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testCapturer() *Capturer {
	return New(Config{
		PollInterval:      5 * time.Millisecond,
		WaitTimeout:       200 * time.Millisecond,
		StabilityInterval: 5 * time.Millisecond,
		StabilityTimeout:  50 * time.Millisecond,
	}, logger.NewNop(), metrics.Nop{})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCapture_RelocatesNewFile(t *testing.T) {
	watch, out := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(watch, "old.pdf"), "old")
	mem := entity.NewMemory(nil)

	final, err := testCapturer().Capture(context.Background(), mem, watch, filepath.Join(out, "report.pdf"),
		func(context.Context) error {
			writeFile(t, filepath.Join(watch, "download-123.pdf"), "new content")
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "report.pdf"), final)
	assert.Equal(t, []string{final}, mem.DownloadPaths())
	assert.FileExists(t, final)
	assert.NoFileExists(t, filepath.Join(watch, "download-123.pdf"))
	assert.FileExists(t, filepath.Join(watch, "old.pdf"))
}

func TestCapture_IgnoresInProgressFiles(t *testing.T) {
	watch, out := t.TempDir(), t.TempDir()
	mem := entity.NewMemory(nil)

	final, err := testCapturer().Capture(context.Background(), mem, watch, filepath.Join(out, "x.csv"),
		func(context.Context) error {
			writeFile(t, filepath.Join(watch, "a.csv.crdownload"), "partial")
			return nil
		})

	require.NoError(t, err)
	assert.Empty(t, final)
	assert.Empty(t, mem.DownloadPaths())
}

func TestCapture_NoFile(t *testing.T) {
	watch, out := t.TempDir(), t.TempDir()
	mem := entity.NewMemory(nil)

	final, err := testCapturer().Capture(context.Background(), mem, watch, filepath.Join(out, "x.pdf"),
		func(context.Context) error { return nil })

	require.NoError(t, err)
	assert.Empty(t, final)
	assert.Empty(t, mem.DownloadPaths())
}

func TestCapture_TriggerError(t *testing.T) {
	boom := errors.New("click failed")

	_, err := testCapturer().Capture(context.Background(), entity.NewMemory(nil), t.TempDir(), "/nowhere/x.pdf",
		func(context.Context) error { return boom })

	assert.ErrorIs(t, err, boom)
}

func TestCapture_GrowingFileStillRelocated(t *testing.T) {
	watch, out := t.TempDir(), t.TempDir()
	mem := entity.NewMemory(nil)
	done := make(chan struct{})

	final, err := testCapturer().Capture(context.Background(), mem, watch, filepath.Join(out, "big.bin"),
		func(context.Context) error {
			f, err := os.Create(filepath.Join(watch, "big.bin"))
			require.NoError(t, err)
			_, _ = f.WriteString("x")
			go func() {
				defer close(done)
				defer f.Close()
				for i := 0; i < 40; i++ {
					_, _ = f.WriteString("more")
					time.Sleep(3 * time.Millisecond)
				}
			}()
			return nil
		})
	<-done

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "big.bin"), final)
	assert.Len(t, mem.DownloadPaths(), 1)
}

func TestCapture_SkipsClaimedFile(t *testing.T) {
	watch, out := t.TempDir(), t.TempDir()
	mem := entity.NewMemory(nil)
	claimed := filepath.Join(watch, "first.pdf")

	final, err := testCapturer().Capture(context.Background(), mem, watch, filepath.Join(out, "second.pdf"),
		func(context.Context) error {
			writeFile(t, claimed, "one")
			require.True(t, mem.ClaimDownload(claimed))
			return nil
		})

	require.NoError(t, err)
	assert.Empty(t, final)
	assert.FileExists(t, claimed)
}

func TestDestination(t *testing.T) {
	id := "3f1c2b9e-8a47-4d2e-9c1b-2a6f0e5d7c11"
	tests := []struct {
		name  string
		found string
		dest  string
		want  string
	}{
		{"declared name kept", "/tmp/d/export.csv", "/out/report.csv", "/out/report.csv"},
		{"uuid stem takes found name", "/tmp/d/export.csv", "/out/" + id + ".csv", "/out/export.csv"},
		{"missing extension adopted", "/tmp/d/export.xlsx", "/out/report", "/out/report.xlsx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Destination(tt.found, tt.dest))
		})
	}
}

func TestCleanCSV(t *testing.T) {
	dir := t.TempDir()
	csv := filepath.Join(dir, "a.csv")
	writeFile(t, csv, "<script>x()</script><script>y()</script>a,b\n1,2\n")
	txt := filepath.Join(dir, "a.txt")
	writeFile(t, txt, "<script>x()</script>keep")

	require.NoError(t, CleanCSV(csv))
	require.NoError(t, CleanCSV(txt))

	data, _ := os.ReadFile(csv)
	assert.Equal(t, "a,b\n1,2\n", string(data))
	data, _ = os.ReadFile(txt)
	assert.Equal(t, "<script>x()</script>keep", string(data))
}
