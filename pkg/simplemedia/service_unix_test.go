//go:build unix

package simplemedia_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// TestUploadFile_DeadlineStopsSlowHash feeds a FIFO a few bytes at a time so
// hashing would take seconds without the caller's deadline.
func TestUploadFile_DeadlineStopsSlowHash(t *testing.T) {
	fifo := filepath.Join(t.TempDir(), "slow.bin")
	if err := syscall.Mkfifo(fifo, 0o600); err != nil {
		t.Skipf("mkfifo unavailable: %v", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		w, err := os.OpenFile(fifo, os.O_WRONLY, 0)
		if err != nil {
			return
		}
		defer w.Close()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; i < 20; i++ {
			if _, err := w.Write([]byte("chunk")); err != nil {
				return
			}
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()

	reg := prometheus.NewRegistry()
	f := newFixture(t, simplemedia.WithMetrics(simplemedia.NewMetrics(reg)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.svc.UploadFile(ctx, "T1", simplemedia.UploadFileParams{Filename: "slow.bin"}, fifo)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, simplemedia.IsRetryable(err))
	assert.Less(t, elapsed, 500*time.Millisecond)

	var uploadErr *simplemedia.UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, "hash", uploadErr.Op)
	assert.Equal(t, 0, f.blobs.Writes())
	assert.Equal(t, 0, f.repo.Count())

	expected := `
# HELP simplemedia_upload_failures_total Failed uploads by reason.
# TYPE simplemedia_upload_failures_total counter
simplemedia_upload_failures_total{reason="canceled"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "simplemedia_upload_failures_total"))
}
