package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "discrete fields",
			config: DatabaseConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "filterq",
				Password: "secret",
				Database: "app",
			},
			expected: "filterq:secret@tcp(localhost:3306)/app?parseTime=true&loc=UTC",
		},
		{
			name: "empty password",
			config: DatabaseConfig{
				Host:     "db.internal",
				Port:     3306,
				User:     "ro",
				Database: "app",
			},
			expected: "ro:@tcp(db.internal:3306)/app?parseTime=true&loc=UTC",
		},
		{
			name: "connection string gains parseTime",
			config: DatabaseConfig{
				ConnectionString: "user:pw@tcp(h:3306)/db",
			},
			expected: "user:pw@tcp(h:3306)/db?parseTime=true&loc=UTC",
		},
		{
			name: "connection string with existing params",
			config: DatabaseConfig{
				ConnectionString: "user:pw@tcp(h:3306)/db?parseTime=true&loc=UTC",
			},
			expected: "user:pw@tcp(h:3306)/db?parseTime=true&loc=UTC",
		},
		{
			name: "tls skip-verify",
			config: DatabaseConfig{
				Host:     "h",
				Port:     3306,
				User:     "u",
				Database: "db",
				TLS:      DatabaseTLSConfig{Mode: "skip-verify"},
			},
			expected: "u:@tcp(h:3306)/db?parseTime=true&loc=UTC&tls=skip-verify",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

func TestEffectiveDatabaseName(t *testing.T) {
	d := DatabaseConfig{Database: "app"}
	name, err := d.EffectiveDatabaseName()
	require.NoError(t, err)
	assert.Equal(t, "app", name)

	d = DatabaseConfig{ConnectionString: "u:p@tcp(h:3306)/fromdsn"}
	name, err = d.EffectiveDatabaseName()
	require.NoError(t, err)
	assert.Equal(t, "fromdsn", name)

	d = DatabaseConfig{Database: "app", ConnectionString: "u:p@tcp(h:3306)/other"}
	_, err = d.EffectiveDatabaseName()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")

	d = DatabaseConfig{}
	_, err = d.EffectiveDatabaseName()
	require.Error(t, err)
}

func validTestConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:                    "localhost",
			Port:                    3306,
			User:                    "filterq",
			Database:                "app",
			Pool:                    PoolConfig{MaxOpen: 25, MaxIdle: 5, MaxLifetime: 5 * time.Minute},
			ConnectionTimeout:       time.Minute,
			ConnectionRetryInterval: 2 * time.Second,
		},
		Server: ServerConfig{Port: 8080},
		Entities: map[string]EntityConfig{
			"user": {
				Table: "users",
				Columns: map[string]string{
					"id":   "int",
					"name": "string",
				},
				DefaultOrderBy: "id",
			},
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{Level: "info", Format: "json"},
			OTLP:    OTLPConfig{Endpoint: "localhost:4317", Protocol: "grpc"},
		},
	}
}

func TestValidateOK(t *testing.T) {
	result := validTestConfig().Validate()
	assert.False(t, result.HasErrors(), result.Error())
}

func TestValidateEntityErrors(t *testing.T) {
	cfg := validTestConfig()
	cfg.Entities["bad"] = EntityConfig{
		Table: "t;drop",
		Columns: map[string]string{
			"ok":      "int",
			"colbad":  "uuid",
			"bad col": "string",
		},
		AllowedFields:  []string{"missing"},
		DefaultOrderBy: "nope",
		DefaultLimit:   200,
		MaxLimit:       100,
	}

	result := cfg.Validate()
	require.True(t, result.HasErrors())

	joined := result.Error()
	assert.Contains(t, joined, `invalid table name "t;drop"`)
	assert.Contains(t, joined, `unknown type "uuid"`)
	assert.Contains(t, joined, `invalid column name "bad col"`)
	assert.Contains(t, joined, `allowed field "missing" is not a declared column`)
	assert.Contains(t, joined, `default_order_by "nope" is not a declared column`)
	assert.Contains(t, joined, "default_limit 200 exceeds max_limit 100")
}

func TestValidateDefaultOrderByMustBeAllowed(t *testing.T) {
	cfg := validTestConfig()
	cfg.Entities["restricted"] = EntityConfig{
		Table: "restricted",
		Columns: map[string]string{
			"id":   "int",
			"name": "string",
		},
		AllowedFields:  []string{"name"},
		DefaultOrderBy: "id",
	}

	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), `default_order_by "id" is not in allowed_fields`)
}

func TestValidateNoEntitiesIsWarning(t *testing.T) {
	cfg := validTestConfig()
	cfg.Entities = nil

	result := cfg.Validate()
	assert.False(t, result.HasErrors())
	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, "entities", result.Warnings[0].Field)
}

func TestValidateEventsRequireAddrAndStream(t *testing.T) {
	cfg := validTestConfig()
	cfg.Events = EventsConfig{Enabled: true, Addr: "not-an-addr", Stream: ""}

	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "invalid Redis address")
	assert.Contains(t, result.Error(), "stream key is required")

	cfg.Events = EventsConfig{Enabled: false}
	assert.False(t, cfg.Validate().HasErrors())
}

func TestValidateDatabaseTLS(t *testing.T) {
	cfg := validTestConfig()
	cfg.Database.TLS = DatabaseTLSConfig{Mode: "verify-full"}

	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "CA file is required")

	cfg.Database.TLS = DatabaseTLSConfig{Mode: "skip-verify"}
	result = cfg.Validate()
	assert.False(t, result.HasErrors())
	assert.NotEmpty(t, result.Warnings)
}

func TestValidateObservability(t *testing.T) {
	cfg := validTestConfig()
	cfg.Observability.Logging.Level = "verbose"
	cfg.Observability.TraceSampleRatio = 2.0

	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), `invalid log level "verbose"`)
	assert.Contains(t, result.Error(), "trace_sample_ratio")
}

func TestMergeOTLPOverrides(t *testing.T) {
	base := OTLPConfig{
		Endpoint:    "localhost:4317",
		Protocol:    "grpc",
		Timeout:     10 * time.Second,
		Compression: "gzip",
		Headers:     map[string]string{"a": "1"},
	}
	obs := ObservabilityConfig{
		OTLP:   base,
		Traces: &OTLPConfig{Endpoint: "traces:4317", Headers: map[string]string{"b": "2"}},
	}

	effective := obs.TracesOTLP()
	assert.Equal(t, "traces:4317", effective.Endpoint)
	assert.Equal(t, "grpc", effective.Protocol)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, effective.Headers)

	assert.Equal(t, base, obs.LogsOTLP(), "no override leaves the global config untouched")
}
