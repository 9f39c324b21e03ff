package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/skyhil/hilbridge/pkg/core"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "hilbridge.cfg.json"

// Mocap directions.
const (
	MocapInbound  = "inbound"
	MocapOutbound = "outbound"
)

// HILConfig holds tick-side tuning for the autopilot link.
type HILConfig struct {
	GpsPeriod       time.Duration
	LinkTimeout     time.Duration
	SystemID        int
	ComponentID     int
	StatusQueueSize int
}

// EndpointConfig describes one auxiliary MAVLink endpoint.
type EndpointConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// EndpointsConfig groups the auxiliary endpoints.
type EndpointsConfig struct {
	Video          EndpointConfig
	LogViewer      EndpointConfig
	QGC            EndpointConfig
	Mocap          EndpointConfig
	MocapDirection string
	ExternalSim    EndpointConfig
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds InfluxDB link-metrics settings
type InfluxConfig struct {
	Enabled  bool
	Protocol string
	Host     string
	Port     string
	Token    string
	Org      string
	Bucket   string
}

// GraylogConfig holds GELF log shipping settings
type GraylogConfig struct {
	Enabled bool
	Address string
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	OutputDir    string        `json:"outputDir" mapstructure:"outputDir"`
}

// PostgresConfig holds PostgreSQL storage backend settings
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// WebSocketConfig holds telemetry stream settings
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig holds flight recorder backend configuration
type StorageConfig struct {
	Type          string          `json:"type" mapstructure:"type"`
	BufferSize    int             `json:"bufferSize" mapstructure:"bufferSize"`
	FlushInterval time.Duration   `json:"flushInterval" mapstructure:"flushInterval"`
	Memory        MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite        SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	Postgres      PostgresConfig  `json:"postgres" mapstructure:"postgres"`
	WebSocket     WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// UploadConfig holds flight log server settings
type UploadConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
	Tag     string `json:"tag" mapstructure:"tag"`
}

// SimConfig configures the standalone demo vehicle.
type SimConfig struct {
	TickRate   time.Duration
	Home       core.GeoPoint
	RotorCount int
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	def := core.DefaultConnectionInfo()

	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./hillogs")

	viper.SetDefault("hil.vehicleName", def.VehicleName)
	viper.SetDefault("hil.useSerial", def.UseSerial)
	viper.SetDefault("hil.ipAddress", def.IPAddress)
	viper.SetDefault("hil.ipPort", def.IPPort)
	viper.SetDefault("hil.serialPort", def.SerialPort)
	viper.SetDefault("hil.baudRate", def.BaudRate)
	viper.SetDefault("hil.gpsPeriod", "100ms")
	viper.SetDefault("hil.linkTimeout", "2s")
	viper.SetDefault("hil.systemID", 134)
	viper.SetDefault("hil.componentID", 1)
	viper.SetDefault("hil.statusQueueSize", 100)

	viper.SetDefault("video.enabled", false)
	viper.SetDefault("video.address", "127.0.0.1:14580")
	viper.SetDefault("logViewer.enabled", false)
	viper.SetDefault("logViewer.address", "127.0.0.1:14570")
	viper.SetDefault("qgc.enabled", false)
	viper.SetDefault("qgc.address", "127.0.0.1:14550")
	viper.SetDefault("mocap.enabled", false)
	viper.SetDefault("mocap.address", "0.0.0.0:14590")
	viper.SetDefault("mocap.direction", MocapInbound)
	viper.SetDefault("externalSim.enabled", false)
	viper.SetDefault("externalSim.address", "127.0.0.1:14600")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "hilbridge")
	viper.SetDefault("influx.bucket", "hil-link")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "hilbridge")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.bufferSize", 1000)
	viper.SetDefault("storage.flushInterval", "1s")
	viper.SetDefault("storage.memory.outputDir", "./flights")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.outputDir", "./flights")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "hilbridge")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api/v1/telemetry/ws")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("upload.enabled", false)
	viper.SetDefault("upload.url", "http://localhost:5000")
	viper.SetDefault("upload.secret", "")
	viper.SetDefault("upload.tag", "hil")

	viper.SetDefault("sim.tickRate", "3ms")
	viper.SetDefault("sim.home.latitude", 47.641468)
	viper.SetDefault("sim.home.longitude", -122.140165)
	viper.SetDefault("sim.home.altitude", 122.0)
	viper.SetDefault("sim.rotorCount", 4)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetConnectionInfo returns the autopilot link descriptor.
func GetConnectionInfo() core.ConnectionInfo {
	return core.ConnectionInfo{
		VehicleName: viper.GetString("hil.vehicleName"),
		UseSerial:   viper.GetBool("hil.useSerial"),
		IPAddress:   viper.GetString("hil.ipAddress"),
		IPPort:      viper.GetInt("hil.ipPort"),
		SerialPort:  viper.GetString("hil.serialPort"),
		BaudRate:    viper.GetInt("hil.baudRate"),
	}
}

// GetHILConfig returns the autopilot link tuning.
func GetHILConfig() HILConfig {
	return HILConfig{
		GpsPeriod:       viper.GetDuration("hil.gpsPeriod"),
		LinkTimeout:     viper.GetDuration("hil.linkTimeout"),
		SystemID:        viper.GetInt("hil.systemID"),
		ComponentID:     viper.GetInt("hil.componentID"),
		StatusQueueSize: viper.GetInt("hil.statusQueueSize"),
	}
}

func getEndpoint(key string) EndpointConfig {
	return EndpointConfig{
		Enabled: viper.GetBool(key + ".enabled"),
		Address: viper.GetString(key + ".address"),
	}
}

// GetEndpointsConfig returns the auxiliary endpoint configuration.
// An unknown mocap direction falls back to inbound.
func GetEndpointsConfig() EndpointsConfig {
	dir := strings.ToLower(viper.GetString("mocap.direction"))
	if dir != MocapOutbound {
		dir = MocapInbound
	}
	return EndpointsConfig{
		Video:          getEndpoint("video"),
		LogViewer:      getEndpoint("logViewer"),
		QGC:            getEndpoint("qgc"),
		Mocap:          getEndpoint("mocap"),
		MocapDirection: dir,
		ExternalSim:    getEndpoint("externalSim"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Protocol: viper.GetString("influx.protocol"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetGraylogConfig returns the Graylog configuration.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetStorageConfig returns the flight recorder configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:          viper.GetString("storage.type"),
		BufferSize:    viper.GetInt("storage.bufferSize"),
		FlushInterval: viper.GetDuration("storage.flushInterval"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			OutputDir:    viper.GetString("storage.sqlite.outputDir"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetUploadConfig returns the flight log upload configuration.
func GetUploadConfig() UploadConfig {
	return UploadConfig{
		Enabled: viper.GetBool("upload.enabled"),
		URL:     viper.GetString("upload.url"),
		Secret:  viper.GetString("upload.secret"),
		Tag:     viper.GetString("upload.tag"),
	}
}

// GetSimConfig returns the standalone runner configuration.
func GetSimConfig() SimConfig {
	return SimConfig{
		TickRate: viper.GetDuration("sim.tickRate"),
		Home: core.GeoPoint{
			Latitude:  viper.GetFloat64("sim.home.latitude"),
			Longitude: viper.GetFloat64("sim.home.longitude"),
			Altitude:  viper.GetFloat64("sim.home.altitude"),
		},
		RotorCount: viper.GetInt("sim.rotorCount"),
	}
}
