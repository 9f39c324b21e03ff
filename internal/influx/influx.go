package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/skyhil/hilbridge/internal/config"
)

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influxdb is disabled")

// retention for a bucket created on first connect
const bucketRetention = 60 * 60 * 24 * 30

// Manager writes link metrics to InfluxDB. When the server cannot be reached
// points are appended to a gzipped line-protocol backup file instead.
type Manager struct {
	cfg        config.InfluxConfig
	logger     zerolog.Logger
	backupPath string

	mu         sync.Mutex
	client     influxdb2.Client
	writer     influxdb2_api.WriteAPI
	backupFile *os.File
	backup     *gzip.Writer
	valid      bool
	written    uint64
}

// NewManager creates an unconnected manager.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		cfg:        cfg,
		logger:     log,
		backupPath: backupPath,
	}
}

// Connect pings the server and prepares the bucket writer, or falls back to
// the backup file.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.client.Ping(ctx)
	if err != nil || !running {
		m.valid = false
		m.logger.Warn().Err(err).Str("backupPath", m.backupPath).
			Msg("InfluxDB unreachable, writing link metrics to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}

	m.writer = m.client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.writer.Errors())

	m.valid = true
	m.logger.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.backup != nil {
		return nil
	}
	if m.backupPath == "" {
		return errors.New("influxdb unreachable and no backup path configured")
	}
	if err := os.MkdirAll(filepath.Dir(m.backupPath), 0755); err != nil {
		return fmt.Errorf("error creating backup dir: %w", err)
	}
	file, err := os.OpenFile(m.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.backup = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.client.OrganizationsAPI()

	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			m.logger.Error().Err(err).Str("org", m.cfg.Org).Msg("Error creating organization")
			return err
		}
	}

	if _, err = m.client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err == nil {
		return nil
	}

	m.logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
	rule := domain.RetentionRuleTypeExpire
	_, err = m.client.BucketsAPI().CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: bucketRetention,
	})
	if err != nil {
		m.logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
		return err
	}
	return nil
}

// IsValid reports whether points go to a live server.
func (m *Manager) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valid
}

// Written returns the number of points accepted since Connect.
func (m *Manager) Written() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written
}

// WritePoint sends one point to the server or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid {
		m.writer.WritePoint(point)
		m.written++
		return nil
	}
	if m.backup == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}

	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := m.backup.Write([]byte(line)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	m.written++
	return nil
}

// Close flushes pending points and releases the client and backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.writer != nil {
		m.writer.Flush()
		m.writer = nil
	}
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	if m.backup != nil {
		errs = append(errs, m.backup.Close())
		m.backup = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	m.valid = false
	return errors.Join(errs...)
}
