// internal/storage/memory/memory.go
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/skyhil/hilbridge/internal/config"
	"github.com/skyhil/hilbridge/pkg/core"
)

// Backend keeps one run's telemetry in memory and writes it as a JSON
// flight log when the run ends.
type Backend struct {
	cfg config.MemoryConfig
	run *core.Session

	sensors    []core.SensorSample
	gps        []core.GpsSample
	actuators  []core.ActuatorSample
	collisions []core.CollisionEvent
	status     []core.StatusEvent

	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartRun begins recording a new run and assigns its ID.
func (b *Backend) StartRun(run *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	run.ID = b.idCounter
	cp := *run
	b.run = &cp

	b.sensors = nil
	b.gps = nil
	b.actuators = nil
	b.collisions = nil
	b.status = nil

	return nil
}

// EndRun stamps the end time and exports the run.
func (b *Backend) EndRun(end time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run == nil {
		return fmt.Errorf("no run in progress")
	}
	b.run.EndTime = end
	err := b.exportJSON()
	b.run = nil
	return err
}

// GetExportedFilePath returns the flight log written by the last EndRun.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// Run returns a copy of the run in progress.
func (b *Backend) Run() (core.Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.run == nil {
		return core.Session{}, false
	}
	return *b.run, true
}

// RecordSensor records a HIL_SENSOR sample
func (b *Backend) RecordSensor(s *core.SensorSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.run == nil {
		return nil
	}
	b.sensors = append(b.sensors, *s)
	return nil
}

// RecordGps records a HIL_GPS sample
func (b *Backend) RecordGps(s *core.GpsSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.run == nil {
		return nil
	}
	b.gps = append(b.gps, *s)
	return nil
}

// RecordActuators records an accepted actuator vector
func (b *Backend) RecordActuators(s *core.ActuatorSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.run == nil {
		return nil
	}
	cp := *s
	cp.Controls = append([]float64(nil), s.Controls...)
	b.actuators = append(b.actuators, cp)
	return nil
}

// RecordCollision records a collision event
func (b *Backend) RecordCollision(e *core.CollisionEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.run == nil {
		return nil
	}
	b.collisions = append(b.collisions, *e)
	return nil
}

// RecordStatus records a status message
func (b *Backend) RecordStatus(e *core.StatusEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.run == nil {
		return nil
	}
	b.status = append(b.status, *e)
	return nil
}
