package telemetry

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/expmem/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"disabled skips checks", Config{}, ""},
		{"local insecure ok", Config{Enabled: true, Endpoint: "localhost:4317", ServiceName: "expmem", Insecure: true, SamplingRate: 1}, ""},
		{"loopback ipv4", Config{Enabled: true, Endpoint: "127.0.0.1:4317", ServiceName: "expmem", Insecure: true}, ""},
		{"remote insecure rejected", Config{Enabled: true, Endpoint: "otel.example.com:4317", ServiceName: "expmem", Insecure: true}, "insecure"},
		{"missing endpoint", Config{Enabled: true, ServiceName: "expmem"}, "endpoint"},
		{"missing service", Config{Enabled: true, Endpoint: "localhost:4317"}, "service_name"},
		{"bad rate", Config{Enabled: true, Endpoint: "localhost:4317", ServiceName: "expmem", SamplingRate: 2}, "sampling rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), FromSettings(config.TelemetryConfig{}, "dev"))
	require.NoError(t, err)
	assert.False(t, tel.Enabled())
	assert.Nil(t, tel.LoggerProvider())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestFromSettings_LogExport(t *testing.T) {
	cfg := FromSettings(config.TelemetryConfig{Enabled: true, LogsEnabled: true, Endpoint: "localhost:4317"}, "1.2.3")
	assert.True(t, cfg.LogsEnabled)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)

	var nilTel *Telemetry
	assert.Nil(t, nilTel.LoggerProvider())
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, newSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, newSampler(0.5).Description(), "TraceIDRatioBased")
}
