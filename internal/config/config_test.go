package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"hil": { "ipAddress": "10.0.0.1", "ipPort": 14561, "useSerial": false }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "10.0.0.1", viper.GetString("hil.ipAddress"))
	assert.Equal(t, 14561, viper.GetInt("hil.ipPort"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./hillogs", viper.GetString("logsDir"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, "./flights", viper.GetString("storage.memory.outputDir"))
	assert.Equal(t, true, viper.GetBool("storage.memory.compressOutput"))
	assert.Equal(t, "3m", viper.GetString("storage.sqlite.dumpInterval"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "hilbridge", viper.GetString("otel.serviceName"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetConnectionInfo_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	info := GetConnectionInfo()
	assert.Equal(t, "Pixhawk", info.VehicleName)
	assert.True(t, info.UseSerial)
	assert.Equal(t, "127.0.0.1", info.IPAddress)
	assert.Equal(t, 14560, info.IPPort)
	assert.Equal(t, "*", info.SerialPort)
	assert.Equal(t, 115200, info.BaudRate)
}

func TestGetConnectionInfo_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"hil": { "vehicleName": "PX4", "useSerial": true, "serialPort": "/dev/ttyACM0", "baudRate": 921600 }
	}`)))

	info := GetConnectionInfo()
	assert.Equal(t, "PX4", info.VehicleName)
	assert.Equal(t, "/dev/ttyACM0", info.SerialPort)
	assert.Equal(t, 921600, info.BaudRate)
}

func TestGetHILConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	hc := GetHILConfig()
	assert.Equal(t, 100*time.Millisecond, hc.GpsPeriod)
	assert.Equal(t, 2*time.Second, hc.LinkTimeout)
	assert.Equal(t, 134, hc.SystemID)
	assert.Equal(t, 1, hc.ComponentID)
	assert.Equal(t, 100, hc.StatusQueueSize)
}

func TestGetEndpointsConfig(t *testing.T) {
	tests := []struct {
		name      string
		cfg       string
		direction string
	}{
		{"default inbound", `{}`, MocapInbound},
		{"outbound", `{"mocap": {"direction": "Outbound"}}`, MocapOutbound},
		{"unknown falls back", `{"mocap": {"direction": "sideways"}}`, MocapInbound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(viper.Reset)
			require.NoError(t, Load(writeConfig(t, tt.cfg)))

			ec := GetEndpointsConfig()
			assert.Equal(t, tt.direction, ec.MocapDirection)
			assert.Equal(t, "127.0.0.1:14580", ec.Video.Address)
			assert.Equal(t, "127.0.0.1:14570", ec.LogViewer.Address)
			assert.Equal(t, "127.0.0.1:14550", ec.QGC.Address)
			assert.Equal(t, "0.0.0.0:14590", ec.Mocap.Address)
			assert.Equal(t, "127.0.0.1:14600", ec.ExternalSim.Address)
			assert.False(t, ec.Video.Enabled)
		})
	}
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, 1000, cfg.BufferSize)
	assert.Equal(t, time.Second, cfg.FlushInterval)
	assert.Equal(t, "./flights", cfg.Memory.OutputDir)
	assert.Equal(t, true, cfg.Memory.CompressOutput)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
	assert.Equal(t, "hilbridge", cfg.Postgres.Database)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false },
			"sqlite": { "dumpInterval": "10m" }
		}
	}`)))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, false, sc.Memory.CompressOutput)
	assert.Equal(t, 10*time.Minute, sc.SQLite.DumpInterval)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "hilbridge", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestGetInfluxAndGraylogConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"influx": { "enabled": true, "host": "influx.local" },
		"graylog": { "enabled": true, "address": "gl:12201" }
	}`)))

	ic := GetInfluxConfig()
	assert.True(t, ic.Enabled)
	assert.Equal(t, "influx.local", ic.Host)
	assert.Equal(t, "8086", ic.Port)
	assert.Equal(t, "hil-link", ic.Bucket)

	gc := GetGraylogConfig()
	assert.True(t, gc.Enabled)
	assert.Equal(t, "gl:12201", gc.Address)
}

func TestGetSimConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"sim": {"tickRate": "10ms", "rotorCount": 6}}`)))

	sc := GetSimConfig()
	assert.Equal(t, 10*time.Millisecond, sc.TickRate)
	assert.Equal(t, 6, sc.RotorCount)
	assert.InDelta(t, 47.641468, sc.Home.Latitude, 1e-9)
	assert.InDelta(t, 122.0, sc.Home.Altitude, 1e-9)
}

func TestGetUploadConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"upload": {"enabled": true, "secret": "s3"}}`)))

	uc := GetUploadConfig()
	assert.True(t, uc.Enabled)
	assert.Equal(t, "http://localhost:5000", uc.URL)
	assert.Equal(t, "s3", uc.Secret)
	assert.Equal(t, "hil", uc.Tag)
}
