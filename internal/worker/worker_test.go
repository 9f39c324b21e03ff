package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/skyhil/hilbridge/internal/config"
	"github.com/skyhil/hilbridge/internal/storage/memory"
	"github.com/skyhil/hilbridge/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend records calls in order; block, when set, stalls every sample
// until closed.
type fakeBackend struct {
	mu       sync.Mutex
	calls    []string
	runIDs   []uint
	endErr   error
	failNext bool
	block    chan struct{}
	closed   bool
}

func (f *fakeBackend) log(s string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	if f.failNext {
		f.failNext = false
		return errors.New("disk full")
	}
	return nil
}

func (f *fakeBackend) Init() error { return nil }
func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
func (f *fakeBackend) StartRun(run *core.Session) error {
	f.mu.Lock()
	f.runIDs = append(f.runIDs, run.ID)
	f.mu.Unlock()
	return f.log("start")
}
func (f *fakeBackend) EndRun(time.Time) error {
	if err := f.log("end"); err != nil {
		return err
	}
	return f.endErr
}
func (f *fakeBackend) RecordSensor(*core.SensorSample) error      { return f.log("sensor") }
func (f *fakeBackend) RecordGps(*core.GpsSample) error            { return f.log("gps") }
func (f *fakeBackend) RecordActuators(*core.ActuatorSample) error { return f.log("actuators") }
func (f *fakeBackend) RecordCollision(*core.CollisionEvent) error { return f.log("collision") }
func (f *fakeBackend) RecordStatus(*core.StatusEvent) error       { return f.log("status") }

func (f *fakeBackend) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestManager_PreservesOrderAcrossRunBoundaries(t *testing.T) {
	fb := &fakeBackend{}
	m, err := NewManager(fb, quietLogger(), 100)
	require.NoError(t, err)
	defer m.Close()

	m.RunStarted(core.Session{ID: 7})
	m.RecordSensor(core.SensorSample{})
	m.RecordGps(core.GpsSample{})
	m.RecordActuators(core.ActuatorSample{Controls: []float64{0.5}})
	m.RecordCollision(core.CollisionEvent{})
	m.RecordStatus(core.StatusEvent{Message: "armed"})
	require.NoError(t, m.RunStopped(time.Now()))

	assert.Equal(t, []string{"start", "sensor", "gps", "actuators", "collision", "status", "end"}, fb.snapshot())
	assert.Equal(t, []uint{7}, fb.runIDs)
	assert.Equal(t, Stats{Recorded: 5}, m.Stats())
}

func TestManager_RunStoppedReturnsBackendError(t *testing.T) {
	fb := &fakeBackend{endErr: errors.New("upload failed")}
	m, err := NewManager(fb, quietLogger(), 10)
	require.NoError(t, err)
	defer m.Close()

	m.RunStarted(core.Session{})
	err = m.RunStopped(time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload failed")
}

func TestManager_CountsFailures(t *testing.T) {
	fb := &fakeBackend{failNext: true}
	m, err := NewManager(fb, quietLogger(), 10)
	require.NoError(t, err)
	defer m.Close()

	m.RecordStatus(core.StatusEvent{})
	m.RecordStatus(core.StatusEvent{})
	require.NoError(t, m.RunStopped(time.Now()))

	assert.Equal(t, Stats{Recorded: 1, Failed: 1}, m.Stats())
}

func TestManager_FullQueueDropsSamplesNotRunStop(t *testing.T) {
	fb := &fakeBackend{block: make(chan struct{})}
	m, err := NewManager(fb, quietLogger(), 2)
	require.NoError(t, err)
	defer m.Close()

	// One sample is taken by the handler and blocks; two fill the queue.
	for i := 0; i < 10; i++ {
		m.RecordSensor(core.SensorSample{})
	}
	assert.Greater(t, m.Stats().Dropped, uint64(0))

	stopped := make(chan error, 1)
	go func() { stopped <- m.RunStopped(time.Now()) }()

	time.Sleep(20 * time.Millisecond)
	close(fb.block)

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunStopped did not return")
	}
	calls := fb.snapshot()
	assert.Equal(t, "end", calls[len(calls)-1])
}

func TestManager_CloseClosesBackendOnce(t *testing.T) {
	fb := &fakeBackend{}
	m, err := NewManager(fb, quietLogger(), 10)
	require.NoError(t, err)

	m.RecordSensor(core.SensorSample{})
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.True(t, fb.closed)
	assert.Equal(t, []string{"sensor"}, fb.snapshot())

	// After close, stops fail fast and samples are counted as dropped.
	assert.Error(t, m.RunStopped(time.Now()))
	m.RecordSensor(core.SensorSample{})
	assert.Equal(t, uint64(1), m.Stats().Dropped)
}

func TestManager_WithMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	backend := memory.New(config.MemoryConfig{OutputDir: dir})
	m, err := NewManager(backend, quietLogger(), 0)
	require.NoError(t, err)
	defer m.Close()

	start := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	m.RunStarted(core.Session{VehicleName: "quad", StartTime: start})
	for i := 0; i < 50; i++ {
		m.RecordSensor(core.SensorSample{Time: start.Add(time.Duration(i) * 10 * time.Millisecond)})
	}
	require.NoError(t, m.RunStopped(start.Add(time.Second)))

	assert.Contains(t, backend.GetExportedFilePath(), "quad_20260202_100000_1.json")
	assert.Equal(t, uint64(50), m.Stats().Recorded)
}

type recordingUploader struct {
	mu    sync.Mutex
	paths []string
	metas []core.UploadMetadata
	err   error
}

func (u *recordingUploader) Upload(ctx context.Context, path string, meta core.UploadMetadata) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paths = append(u.paths, path)
	u.metas = append(u.metas, meta)
	return u.err
}

func TestManager_UploadsExportedLog(t *testing.T) {
	backend := memory.New(config.MemoryConfig{OutputDir: t.TempDir(), CompressOutput: true})
	m, err := NewManager(backend, quietLogger(), 0)
	require.NoError(t, err)

	up := &recordingUploader{}
	m.SetUploader(up, "bench")

	start := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	m.RunStarted(core.Session{VehicleName: "quad", Mode: "RunningHIL", StartTime: start})
	m.RecordSensor(core.SensorSample{Time: start})
	require.NoError(t, m.RunStopped(start.Add(90*time.Second)))

	// Close waits for the background upload.
	require.NoError(t, m.Close())

	require.Len(t, up.paths, 1)
	assert.Equal(t, backend.GetExportedFilePath(), up.paths[0])
	assert.Equal(t, core.UploadMetadata{VehicleName: "quad", Mode: "RunningHIL", Duration: 90, Tag: "bench"}, up.metas[0])
}

func TestManager_UploadFailureDoesNotFailRun(t *testing.T) {
	backend := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	m, err := NewManager(backend, quietLogger(), 0)
	require.NoError(t, err)
	defer m.Close()

	m.SetUploader(&recordingUploader{err: errors.New("403")}, "")
	m.RunStarted(core.Session{VehicleName: "quad", StartTime: time.Now()})
	assert.NoError(t, m.RunStopped(time.Now()))
}

func TestManager_NoUploadForNonExportingBackend(t *testing.T) {
	fb := &fakeBackend{}
	m, err := NewManager(fb, quietLogger(), 0)
	require.NoError(t, err)

	up := &recordingUploader{}
	m.SetUploader(up, "")
	m.RunStarted(core.Session{})
	require.NoError(t, m.RunStopped(time.Now()))
	require.NoError(t, m.Close())

	assert.Empty(t, up.paths)
}
