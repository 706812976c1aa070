package objstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	keys  []string
	fails int
}

func (r *recorder) put(_ context.Context, key, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return errors.New("transient")
	}
	r.keys = append(r.keys, key)
	return nil
}

func touch(t *testing.T, p string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	return p
}

func TestMirrorUploadsRelativeKeys(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	m := NewMirror(rec.put, dir, "/world-a/", MirrorOptions{Workers: 2}, nil)

	m.Enqueue(touch(t, filepath.Join(dir, "audit", "audit-2026-01-02-03.jsonl.zst")))
	m.Enqueue(touch(t, filepath.Join(dir, "snap.zst")))
	m.Enqueue(filepath.Join(dir, "missing"))
	m.Enqueue(touch(t, filepath.Join(t.TempDir(), "outside")))
	m.Close()

	sort.Strings(rec.keys)
	assert.Equal(t, []string{"world-a/audit/audit-2026-01-02-03.jsonl.zst", "world-a/snap.zst"}, rec.keys)
	st := m.Stats()
	assert.Equal(t, uint64(4), st.Enqueued)
	assert.Equal(t, uint64(2), st.Uploaded)
	assert.Equal(t, uint64(2), st.Failed)
	assert.NotZero(t, st.LastSuccessUTC)
}

func TestMirrorRetries(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{fails: 2}
	m := NewMirror(rec.put, dir, "", MirrorOptions{}, nil)
	m.retryBase = time.Millisecond
	m.Enqueue(touch(t, filepath.Join(dir, "a.zst")))
	m.Close()
	m.Close()

	assert.Equal(t, []string{"a.zst"}, rec.keys)
	assert.Equal(t, uint64(1), m.Stats().Uploaded)
}

func TestMirrorNilSafe(t *testing.T) {
	var m *Mirror
	m.Enqueue("x")
	m.Close()
	assert.Equal(t, MirrorStats{}, m.Stats())
}
