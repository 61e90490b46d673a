package roots

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingNotifier struct {
	calls int32
}

func (c *countingNotifier) SendRootsListChanged(ctx context.Context) error {
	atomic.AddInt32(&c.calls, 1)
	return nil
}

func TestWatcherDebouncesBurstOfChanges(t *testing.T) {
	dir := t.TempDir()

	n := &countingNotifier{}
	w, err := NewWatcher(nil, n, 50*time.Millisecond, dir)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&n.calls) == 1
	}, time.Second, 10*time.Millisecond, "expected exactly one debounced notification")
}
