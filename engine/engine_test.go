package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/resource"
	"github.com/wippyai/hostbridge/testbed"
)

func writeGuest(t *testing.T, wasm []byte) string {
	t.Helper()
	path, err := testbed.Write(t.TempDir(), wasm)
	require.NoError(t, err)
	return path
}

func loadTestGuest(t *testing.T, cfg *Config) *Engine {
	t.Helper()
	ctx := context.Background()
	e, err := Load(ctx, writeGuest(t, testbed.Guest()), []string{"hostbridge", "--test"}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(ctx, 0) })
	return e
}

func guestU32(t *testing.T, e *Engine, export string) uint32 {
	t.Helper()
	res, err := e.Call(context.Background(), export)
	require.NoError(t, err)
	require.Len(t, res, 1)
	return uint32(res[0])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.wasm"), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBootstrap)
}

func TestLoad_InvalidImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wasm")
	require.NoError(t, os.WriteFile(path, []byte("not wasm"), 0o644))

	_, err := Load(context.Background(), path, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBootstrap)
	_, ok := Lookup(path)
	assert.False(t, ok, "failed load must not publish")
}

func TestLoad_EmptyPath(t *testing.T) {
	_, err := Load(context.Background(), "", nil, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestEngine_Args(t *testing.T) {
	e := loadTestGuest(t, nil)
	assert.Equal(t, []string{"hostbridge", "--test"}, e.Args())
	assert.True(t, filepath.IsAbs(e.Path()))
	assert.Contains(t, e.Exports(), ExportRelease)
}

func TestEngine_Signatures(t *testing.T) {
	e := loadTestGuest(t, nil)

	sigs := e.Signatures()
	require.Len(t, sigs, len(e.Exports()))
	for i := 1; i < len(sigs); i++ {
		assert.Less(t, sigs[i-1].Name, sigs[i].Name)
	}

	var add Signature
	for _, s := range sigs {
		if s.Name == "add" {
			add = s
		}
	}
	assert.Equal(t, []string{"i32", "i32"}, add.Params)
	assert.Equal(t, []string{"i32"}, add.Results)
}

func TestEngine_Release(t *testing.T) {
	ctx := context.Background()
	e := loadTestGuest(t, nil)

	h, err := e.Register(77)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Table().Len())

	require.NoError(t, e.Release(ctx, h))
	assert.Equal(t, uint32(1), guestU32(t, e, "released"))
	assert.Equal(t, uint32(77), guestU32(t, e, "last_released"))
	assert.Equal(t, 0, e.Table().Len())

	err = e.Release(ctx, h)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRelease)
	assert.Equal(t, uint32(1), guestU32(t, e, "released"), "guest must not see a second release")
}

func TestEngine_ReleaseWithoutGuestExport(t *testing.T) {
	ctx := context.Background()
	e, err := Load(ctx, writeGuest(t, testbed.Empty()), nil, nil)
	require.NoError(t, err)
	defer e.Close(ctx, 0)

	h, err := e.Register(5)
	require.NoError(t, err)
	require.NoError(t, e.Release(ctx, h))
	assert.Equal(t, 0, e.Table().Len())
}

func TestEngine_StringConversion(t *testing.T) {
	ctx := context.Background()
	e := loadTestGuest(t, nil)

	assert.True(t, e.StringConversion())
	assert.Equal(t, uint32(1), guestU32(t, e, "convert_strings"))

	require.NoError(t, e.SetStringConversion(ctx, false))
	assert.False(t, e.StringConversion())
	assert.Equal(t, uint32(0), guestU32(t, e, "convert_strings"))

	require.NoError(t, e.SetStringConversion(ctx, true))
	assert.Equal(t, uint32(1), guestU32(t, e, "convert_strings"))
}

func TestEngine_ReadString(t *testing.T) {
	ctx := context.Background()
	e := loadTestGuest(t, nil)

	h, err := e.Register(testbed.HelloRep)
	require.NoError(t, err)

	s, err := e.ReadString(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	_, err = e.ReadString(ctx, h+1)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestEngine_Call(t *testing.T) {
	ctx := context.Background()
	e := loadTestGuest(t, nil)

	res, err := e.Call(ctx, "add", 2, 40)
	require.NoError(t, err)
	assert.Equal(t, []uint64{42}, res)

	_, err = e.Call(ctx, "missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = e.Call(ctx, "trap")
	assert.Error(t, err)
}

func TestEngine_Threads(t *testing.T) {
	e := loadTestGuest(t, nil)

	require.NoError(t, e.AttachThread(1, false))
	require.NoError(t, e.AttachThread(1, false))
	require.NoError(t, e.AttachThread(2, true))
	assert.Len(t, e.Threads(), 2)

	e.DetachThread(1)
	e.DetachThread(1)
	threads := e.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, uint64(2), threads[0].ID)
	assert.True(t, threads[0].Daemon)
}

func TestEngine_CloseWaitsForUserThreads(t *testing.T) {
	ctx := context.Background()
	e, err := Load(ctx, writeGuest(t, testbed.Guest()), nil, &Config{ThreadWait: 5 * time.Second})
	require.NoError(t, err)

	require.NoError(t, e.AttachThread(10, false))
	require.NoError(t, e.AttachThread(11, true))

	go func() {
		time.Sleep(20 * time.Millisecond)
		e.DetachThread(10)
	}()

	start := time.Now()
	require.NoError(t, e.Close(ctx, 0))
	assert.Less(t, time.Since(start), 5*time.Second, "daemon thread must not hold up close")
	assert.True(t, e.Closed())
	assert.Empty(t, e.Threads())
}

func TestEngine_CloseGivesUp(t *testing.T) {
	ctx := context.Background()
	e, err := Load(ctx, writeGuest(t, testbed.Guest()), nil, &Config{ThreadWait: 10 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, e.AttachThread(10, false))

	require.NoError(t, e.Close(ctx, 0))
	assert.True(t, e.Closed())
}

func TestEngine_AfterClose(t *testing.T) {
	ctx := context.Background()
	e, err := Load(ctx, writeGuest(t, testbed.Guest()), nil, nil)
	require.NoError(t, err)
	h, err := e.Register(1)
	require.NoError(t, err)

	require.NoError(t, e.Close(ctx, 0))
	require.NoError(t, e.Close(ctx, 0))

	assert.ErrorIs(t, e.Release(ctx, h), errors.ErrNotRunning)
	_, err = e.Register(2)
	assert.ErrorIs(t, err, errors.ErrNotRunning)
	_, err = e.Call(ctx, "add", 1, 2)
	assert.ErrorIs(t, err, errors.ErrNotRunning)
	assert.ErrorIs(t, e.AttachThread(1, false), errors.ErrAttach)
}

func TestEngine_RegisterOnClosedTable(t *testing.T) {
	e := loadTestGuest(t, nil)
	e.Table().Close()

	_, err := e.Register(3)
	assert.ErrorIs(t, err, errors.ErrNotRunning)
	assert.ErrorIs(t, err, resource.ErrClosed)
}

func TestRegistry_SkipsClosedEngines(t *testing.T) {
	ctx := context.Background()
	path := writeGuest(t, testbed.Guest())
	e, err := Load(ctx, path, nil, nil)
	require.NoError(t, err)

	got, ok := Lookup("")
	require.True(t, ok)
	assert.Same(t, e, got)

	// Closed but not yet unpublished.
	e.closed.Store(true)
	_, ok = Lookup("")
	assert.False(t, ok)
	_, ok = Lookup(path)
	assert.False(t, ok)

	e.closed.Store(false)
	require.NoError(t, e.Close(ctx, 0))
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	path := writeGuest(t, testbed.Guest())

	_, ok := Lookup(path)
	assert.False(t, ok)

	e, err := Load(ctx, path, nil, nil)
	require.NoError(t, err)

	got, ok := Lookup(path)
	require.True(t, ok)
	assert.Same(t, e, got)
	assert.Contains(t, Published(), e.Path())

	require.NoError(t, e.Close(ctx, 0))
	_, ok = Lookup(path)
	assert.False(t, ok)
}
