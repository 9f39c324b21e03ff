package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/skyhil/hilbridge/internal/controller"
	"github.com/skyhil/hilbridge/internal/influx"
	"github.com/skyhil/hilbridge/internal/worker"
)

// StatusFileName is written into the output dir on every sample.
const StatusFileName = "status.txt"

// DefaultInterval is the sampling period.
const DefaultInterval = time.Second

// StatsSource is the controller view the monitor samples.
type StatsSource interface {
	Stats() controller.Stats
}

// RecorderSource exposes the flight recorder counters.
type RecorderSource interface {
	Stats() worker.Stats
}

// PointWriter receives the influx points built for each sample.
type PointWriter interface {
	WritePoint(point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Controller StatsSource
	Recorder   RecorderSource
	Influx     PointWriter
	// Counters returns cumulative OTel counters, usually otel.Provider.Counters.
	Counters    func(ctx context.Context) (map[string]int64, error)
	VehicleName string
	OutputDir   string
	Interval    time.Duration
	Logger      *slog.Logger
}

// Status is one sample as written to the status file.
type Status struct {
	Time      time.Time                 `json:"time"`
	Vehicle   string                    `json:"vehicle"`
	Mode      string                    `json:"mode"`
	LinkAlive bool                      `json:"linkAlive"`
	Rotors    []float64                 `json:"rotors"`
	Endpoints map[string]EndpointStatus `json:"endpoints"`
	Video     map[string]uint64         `json:"video"`
	Reporter  map[string]uint64         `json:"reporter"`
	Recorder  *worker.Stats             `json:"recorder,omitempty"`
	Counters  map[string]int64          `json:"counters,omitempty"`
}

// EndpointStatus is the status file view of one endpoint.
type EndpointStatus struct {
	State      string `json:"state"`
	Received   uint64 `json:"received"`
	Sent       uint64 `json:"sent"`
	SendErrors uint64 `json:"sendErrors"`
	Dropped    uint64 `json:"dropped"`
}

// Service manages status monitoring
type Service struct {
	deps Dependencies

	mu        sync.RWMutex
	isRunning bool
	stopChan  chan struct{}
	done      chan struct{}
	samples   uint64
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Samples returns how many samples have been taken.
func (s *Service) Samples() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samples
}

// StatusPath is where the status file goes.
func (s *Service) StatusPath() string {
	return filepath.Join(s.deps.OutputDir, StatusFileName)
}

// Snapshot gathers one status sample.
func (s *Service) Snapshot(ctx context.Context) (Status, controller.Stats) {
	st := s.deps.Controller.Stats()
	out := Status{
		Time:      time.Now(),
		Vehicle:   s.deps.VehicleName,
		Mode:      st.Mode.String(),
		LinkAlive: st.LinkAlive,
		Rotors:    st.Rotors,
		Endpoints: make(map[string]EndpointStatus, len(st.Endpoints)),
		Video: map[string]uint64{
			"requests": st.Video.Requests,
			"sent":     st.Video.Sent,
			"dropped":  st.Video.Dropped,
		},
		Reporter: map[string]uint64{
			"pending": uint64(st.StatusPending),
			"dropped": st.StatusDropped,
		},
	}
	for _, ep := range st.Endpoints {
		out.Endpoints[ep.Name] = EndpointStatus{
			State:      ep.State.String(),
			Received:   ep.Counts.Received,
			Sent:       ep.Counts.Sent,
			SendErrors: ep.Counts.SendErrors,
			Dropped:    ep.Counts.Dropped,
		}
	}
	if s.deps.Recorder != nil {
		rs := s.deps.Recorder.Stats()
		out.Recorder = &rs
	}
	if s.deps.Counters != nil {
		counters, err := s.deps.Counters(ctx)
		if err != nil {
			s.deps.Logger.Warn("collecting otel counters failed", "error", err)
		}
		out.Counters = counters
	}
	return out, st
}

// Sample takes one snapshot, rewrites the status file and writes influx
// points.
func (s *Service) Sample(ctx context.Context) error {
	status, st := s.Snapshot(ctx)

	if s.deps.OutputDir != "" {
		if err := s.writeStatus(status); err != nil {
			return err
		}
	}

	if s.deps.Influx != nil {
		points := influx.LinkPoints(s.deps.VehicleName, st, status.Time)
		if status.Recorder != nil {
			points = append(points, influx.RecorderPoint(s.deps.VehicleName, *status.Recorder, status.Time))
		}
		for _, p := range points {
			if err := s.deps.Influx.WritePoint(p); err != nil {
				return fmt.Errorf("writing influx point: %w", err)
			}
		}
	}

	s.mu.Lock()
	s.samples++
	s.mu.Unlock()
	return nil
}

func (s *Service) writeStatus(status Status) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := os.MkdirAll(s.deps.OutputDir, 0755); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}
	tmp := s.StatusPath() + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}
	return os.Rename(tmp, s.StatusPath())
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	if s.deps.Controller == nil {
		return fmt.Errorf("monitor: no controller")
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		var failing bool
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				err := s.Sample(context.Background())
				switch {
				case err != nil && !failing:
					logger.Error("Error writing status sample", "error", err)
					failing = true
				case err == nil && failing:
					logger.Info("Status sampling recovered")
					failing = false
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for the goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
