package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"filterq/internal/sqlutil"
)

// ValidationError represents a configuration validation error with
// context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation
// results, both fatal errors and non-fatal warnings.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Server.validate(result)
	c.Events.validate(result)
	validateEntities(result, c.Entities)
	c.Observability.validate(result)

	return result
}

var validFieldTypes = map[string]bool{
	"string": true, "int": true, "float": true, "bool": true, "date": true,
}

func validateEntities(result *ValidationResult, entities map[string]EntityConfig) {
	if len(entities) == 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "entities",
			Message: "no entities configured",
			Hint:    "declare at least one entity with its table and columns",
		})
		return
	}

	for name, ent := range entities {
		field := "entities." + name

		if !sqlutil.ValidIdentifier(name) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "entities",
				Message: fmt.Sprintf("invalid entity name %q", name),
				Hint:    "entity names may use letters, digits, underscore, and hyphen",
			})
		}
		if ent.Table != "" && !sqlutil.ValidIdentifier(ent.Table) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".table",
				Message: fmt.Sprintf("invalid table name %q", ent.Table),
			})
		}
		if len(ent.Columns) == 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".columns",
				Message: "entity declares no columns",
			})
			continue
		}

		for column, columnType := range ent.Columns {
			if !sqlutil.ValidIdentifier(column) {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field + ".columns",
					Message: fmt.Sprintf("invalid column name %q", column),
				})
			}
			if !validFieldTypes[columnType] {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field + ".columns",
					Message: fmt.Sprintf("unknown type %q for column %q", columnType, column),
					Hint:    "valid types are: string, int, float, bool, date",
				})
			}
		}

		for _, allowed := range ent.AllowedFields {
			if _, ok := ent.Columns[allowed]; !ok {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field + ".allowed_fields",
					Message: fmt.Sprintf("allowed field %q is not a declared column", allowed),
				})
			}
		}

		if ent.DefaultOrderBy != "" {
			if _, ok := ent.Columns[ent.DefaultOrderBy]; !ok {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field + ".default_order_by",
					Message: fmt.Sprintf("default_order_by %q is not a declared column", ent.DefaultOrderBy),
				})
			} else if len(ent.AllowedFields) > 0 && !slices.Contains(ent.AllowedFields, ent.DefaultOrderBy) {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field + ".default_order_by",
					Message: fmt.Sprintf("default_order_by %q is not in allowed_fields", ent.DefaultOrderBy),
					Hint:    "sorting is restricted to allowed_fields; an unauthorized default would never apply",
				})
			}
		}

		if ent.DefaultLimit < 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".default_limit",
				Message: "default_limit cannot be negative",
			})
		}
		if ent.MaxLimit < 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".max_limit",
				Message: "max_limit cannot be negative",
			})
		}
		if ent.DefaultLimit > 0 && ent.MaxLimit > 0 && ent.DefaultLimit > ent.MaxLimit {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".default_limit",
				Message: fmt.Sprintf("default_limit %d exceeds max_limit %d", ent.DefaultLimit, ent.MaxLimit),
			})
		}
	}
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if d.ConnectionString == "" && (d.Port < 1 || d.Port > 65535) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port),
		})
	}

	d.TLS.validate(result)

	if d.Pool.MaxOpen < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_open",
			Message: "max_open cannot be negative",
		})
	}
	if d.Pool.MaxIdle < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_idle",
			Message: "max_idle cannot be negative",
		})
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.pool.max_idle",
			Message: "max_idle is greater than max_open",
			Hint:    "idle connections will be limited to max_open",
		})
	}

	if d.ConnectionTimeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_timeout",
			Message: "connection_timeout cannot be negative",
		})
	}
	if d.ConnectionRetryInterval < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_retry_interval",
			Message: "connection_retry_interval cannot be negative",
		})
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_retry_interval",
			Message: "connection_retry_interval must be greater than 0 when connection_timeout is set",
			Hint:    "set a retry interval such as 2s, or set connection_timeout to 0 to disable retries",
		})
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.connection_retry_interval",
			Message: "connection_retry_interval is greater than connection_timeout",
			Hint:    "only one connection attempt will be made",
		})
	}

	if _, err := d.EffectiveDatabaseName(); err != nil {
		if strings.HasPrefix(err.Error(), "database.dsn") {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.dsn",
				Message: err.Error(),
				Hint:    "set a valid MySQL DSN in database.dsn/database.dsn_file",
			})
		} else {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.database",
				Message: err.Error(),
			})
		}
	}
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.mode",
			Message: fmt.Sprintf("invalid TLS mode %q", t.Mode),
			Hint:    "valid values are: off, skip-verify, verify-ca, verify-full",
		})
	}

	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.CAFile == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.ca_file",
			Message: "CA file is required for verify-ca and verify-full modes",
		})
	}

	if (t.CertFile != "" && t.KeyFile == "") || (t.CertFile == "" && t.KeyFile != "") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.cert_file",
			Message: "both cert_file and key_file must be specified for client certificate authentication",
		})
	}

	if t.Mode == "skip-verify" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.tls.mode",
			Message: "skip-verify mode does not verify server certificates",
			Hint:    "use verify-ca or verify-full in production",
		})
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port),
		})
	}
}

func (e *EventsConfig) validate(result *ValidationResult) {
	if !e.Enabled {
		return
	}

	if _, _, err := net.SplitHostPort(e.Addr); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "events.addr",
			Message: fmt.Sprintf("invalid Redis address %q", e.Addr),
			Hint:    "use host:port",
		})
	}
	if strings.TrimSpace(e.Stream) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "events.stream",
			Message: "stream key is required when events are enabled",
		})
	}
	if e.MaxLen < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "events.max_len",
			Message: "max_len cannot be negative",
		})
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("invalid log level %q", o.Logging.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("invalid log format %q", o.Logging.Format),
			Hint:    "valid values are: json, text",
		})
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("trace_sample_ratio %v must be between 0.0 and 1.0", o.TraceSampleRatio),
		})
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".protocol",
			Message: fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			Hint:    "valid values are: grpc, http/protobuf",
		})
	}

	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".endpoint",
			Message: fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			Hint:    "use host:port or a full URL",
		})
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			Hint:    "valid values are: none, gzip",
		})
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
