package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/skyhil/hilbridge/internal/dispatcher"
	"github.com/skyhil/hilbridge/internal/storage"
	"github.com/skyhil/hilbridge/pkg/core"
)

func (m *Manager) handleRecord(e dispatcher.Event) (any, error) {
	var err error
	switch p := e.Payload.(type) {
	case *core.SensorSample:
		err = m.backend.RecordSensor(p)
	case *core.GpsSample:
		err = m.backend.RecordGps(p)
	case *core.ActuatorSample:
		err = m.backend.RecordActuators(p)
	case *core.CollisionEvent:
		err = m.backend.RecordCollision(p)
	case *core.StatusEvent:
		err = m.backend.RecordStatus(p)
	case runStart:
		return nil, m.handleRunStart(p)
	case runStop:
		err = m.handleRunStop(p)
		p.done <- err
		return nil, err
	default:
		err = fmt.Errorf("unexpected payload %T", e.Payload)
	}

	if err != nil {
		m.failed.Add(1)
		return nil, err
	}
	m.recorded.Add(1)
	return nil, nil
}

func (m *Manager) handleRunStart(p runStart) error {
	run := p.run
	if err := m.backend.StartRun(&run); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	m.current = run
	m.logger.Info("Run recording started", "run", run.ID, "vehicle", run.VehicleName, "mode", run.Mode)
	return nil
}

func (m *Manager) handleRunStop(p runStop) error {
	if err := m.backend.EndRun(p.end); err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}
	if exp, ok := m.backend.(storage.Exportable); ok {
		if path := exp.GetExportedFilePath(); path != "" {
			m.logger.Info("Flight log written", "path", path)
			m.upload(path, m.current, p.end)
		}
	}
	return nil
}

// upload runs in the background so the recorder never waits on the network.
func (m *Manager) upload(path string, run core.Session, end time.Time) {
	if m.uploader == nil {
		return
	}
	meta := core.UploadMetadata{
		VehicleName: run.VehicleName,
		Mode:        run.Mode,
		Tag:         m.uploadTag,
	}
	if !run.StartTime.IsZero() {
		meta.Duration = end.Sub(run.StartTime).Seconds()
	}

	m.uploads.Add(1)
	go func() {
		defer m.uploads.Done()
		ctx, cancel := context.WithTimeout(context.Background(), UploadTimeout)
		defer cancel()
		if err := m.uploader.Upload(ctx, path, meta); err != nil {
			m.logger.Error("Flight log upload failed", "path", path, "error", err)
			return
		}
		m.logger.Info("Flight log uploaded", "path", path)
	}()
}
