// Package gormstorage implements the storage.Backend interface on any GORM
// dialect with internal queues and a background DB writer goroutine.
// The postgres and sqlite backends wrap it and only supply the connection.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skyhil/hilbridge/internal/database"
	"github.com/skyhil/hilbridge/internal/model"
	"github.com/skyhil/hilbridge/internal/model/convert"
	"github.com/skyhil/hilbridge/internal/queue"
	"github.com/skyhil/hilbridge/pkg/core"

	"gorm.io/gorm"
)

// DefaultFlushInterval is how often queued samples are written.
const DefaultFlushInterval = 2 * time.Second

// ErrNoRun is returned by EndRun when no run was started.
var ErrNoRun = errors.New("no run in progress")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Sensors    *queue.Queue[model.SensorSample]
	Gps        *queue.Queue[model.GpsSample]
	Actuators  *queue.Queue[model.ActuatorSample]
	Collisions *queue.Queue[model.CollisionEvent]
	Status     *queue.Queue[model.StatusEvent]
}

func newQueues() *queues {
	return &queues{
		Sensors:    queue.New[model.SensorSample](),
		Gps:        queue.New[model.GpsSample](),
		Actuators:  queue.New[model.ActuatorSample](),
		Collisions: queue.New[model.CollisionEvent](),
		Status:     queue.New[model.StatusEvent](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps     Dependencies
	queues   *queues
	runID    atomic.Uint64
	stopChan chan struct{}
	done     chan struct{}

	// serializes flushes between the writer goroutine and EndRun
	flushMu sync.Mutex
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend has no database")
	}
	if err := database.Setup(b.deps.DB, b.deps.Logger); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writerLoop()
	return nil
}

// Close stops the writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	<-b.done
	b.stopChan = nil
	return b.Flush()
}

// StartRun inserts the run synchronously so samples can reference its ID.
func (b *Backend) StartRun(run *core.Session) error {
	if b.deps.DB == nil {
		return nil
	}
	r := convert.CoreToRun(*run)
	r.ID = 0
	if err := b.deps.DB.Create(&r).Error; err != nil {
		return fmt.Errorf("failed to insert new run: %w", err)
	}
	run.ID = r.ID
	b.runID.Store(uint64(r.ID))
	return nil
}

// RunID returns the ID samples are currently stamped with, 0 between runs.
// Samples recorded between runs are dropped.
func (b *Backend) RunID() uint {
	return uint(b.runID.Load())
}

// EndRun writes the remaining samples and stamps the run's end time.
func (b *Backend) EndRun(end time.Time) error {
	id := b.runID.Swap(0)
	if id == 0 {
		return ErrNoRun
	}
	flushErr := b.Flush()
	if b.deps.DB == nil {
		return flushErr
	}
	err := b.deps.DB.Model(&model.Run{}).Where("id = ?", id).Update("end_time", end).Error
	if err != nil {
		err = fmt.Errorf("failed to close run %d: %w", id, err)
	}
	return errors.Join(flushErr, err)
}

// RecordSensor converts and queues a sensor sample.
func (b *Backend) RecordSensor(s *core.SensorSample) error {
	id := b.RunID()
	if id == 0 {
		return nil
	}
	m := convert.CoreToSensorSample(*s)
	m.RunID = id
	b.queues.Sensors.Push(m)
	return nil
}

// RecordGps converts and queues a GPS sample.
func (b *Backend) RecordGps(s *core.GpsSample) error {
	id := b.RunID()
	if id == 0 {
		return nil
	}
	m := convert.CoreToGpsSample(*s)
	m.RunID = id
	b.queues.Gps.Push(m)
	return nil
}

// RecordActuators converts and queues an actuator sample.
func (b *Backend) RecordActuators(s *core.ActuatorSample) error {
	id := b.RunID()
	if id == 0 {
		return nil
	}
	m := convert.CoreToActuatorSample(*s)
	m.RunID = id
	b.queues.Actuators.Push(m)
	return nil
}

// RecordCollision converts and queues a collision event.
func (b *Backend) RecordCollision(e *core.CollisionEvent) error {
	id := b.RunID()
	if id == 0 {
		return nil
	}
	m := convert.CoreToCollisionEvent(*e)
	m.RunID = id
	b.queues.Collisions.Push(m)
	return nil
}

// RecordStatus converts and queues a status event.
func (b *Backend) RecordStatus(e *core.StatusEvent) error {
	id := b.RunID()
	if id == 0 {
		return nil
	}
	m := convert.CoreToStatusEvent(*e)
	m.RunID = id
	b.queues.Status.Push(m)
	return nil
}

// Pending returns the number of queued rows not yet written.
func (b *Backend) Pending() int {
	q := b.queues
	return q.Sensors.Len() + q.Gps.Len() + q.Actuators.Len() + q.Collisions.Len() + q.Status.Len()
}

// Flush drains every queue into the database once. Rows that fail to write
// are pushed back and retried on the next flush.
func (b *Backend) Flush() error {
	if b.deps.DB == nil {
		return nil
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	db, log := b.deps.DB, b.deps.Logger
	return errors.Join(
		writeQueue(db, b.queues.Sensors, "sensor samples", log),
		writeQueue(db, b.queues.Gps, "gps samples", log),
		writeQueue(db, b.queues.Actuators, "actuator samples", log),
		writeQueue(db, b.queues.Collisions, "collision events", log),
		writeQueue(db, b.queues.Status, "status events", log),
	)
}

// writeQueue writes all items from a queue to the database in a transaction.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) error {
	if q.Empty() {
		return nil
	}

	items := q.GetAndEmpty()
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error("Error creating rows", "table", name, "count", len(items), "error", err)
		tx.Rollback()
		q.Push(items...)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tx.Commit().Error; err != nil {
		q.Push(items...)
		return fmt.Errorf("committing %s: %w", name, err)
	}

	log.Debug("Wrote rows", "table", name, "count", len(items))
	return nil
}

// writerLoop periodically drains queues into the DB until Close.
func (b *Backend) writerLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			_ = b.Flush()
		}
	}
}
