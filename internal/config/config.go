package config

import (
	"time"

	"github.com/caarlos0/env"
)

// Config holds the process settings read from the environment.
type Config struct {
	Addr         string        `env:"ODATABATCH_ADDR" envDefault:":8080"`
	ServiceRoot  string        `env:"ODATABATCH_SERVICE_ROOT" envDefault:"/odata/"`
	Timeout      time.Duration `env:"ODATABATCH_TIMEOUT" envDefault:"30s"`
	MaxBodyBytes int64         `env:"ODATABATCH_MAX_BODY_BYTES" envDefault:"10485760"`
	Concurrency  int           `env:"ODATABATCH_CONCURRENCY" envDefault:"1"`
	Pretty       bool          `env:"ODATABATCH_PRETTY"`
	CORSOrigins  []string      `env:"ODATABATCH_CORS_ORIGINS" envSeparator:","`

	// UpstreamHTTP is the service root requests are replayed against.
	UpstreamHTTP string `env:"ODATABATCH_UPSTREAM_HTTP"`
	// UpstreamGRPC lists dispatcher endpoints as route=host:port pairs.
	UpstreamGRPC        string        `env:"ODATABATCH_UPSTREAM_GRPC"`
	RPCTimeout          time.Duration `env:"ODATABATCH_RPC_TIMEOUT" envDefault:"10s"`
	MaxConnsPerEndpoint int           `env:"ODATABATCH_MAX_CONNS_PER_ENDPOINT" envDefault:"4"`
	MetadataHeaders     []string      `env:"ODATABATCH_METADATA_HEADERS" envSeparator:","`

	OtelEndpoint string `env:"ODATABATCH_OTEL_ENDPOINT"`
	OtelService  string `env:"ODATABATCH_OTEL_SERVICE" envDefault:"odatabatch"`

	LogLevel  string `env:"ODATABATCH_LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"ODATABATCH_LOG_PRETTY"`

	MongoURL        string `env:"ODATABATCH_MONGO_URL"`
	AuditDatabase   string `env:"ODATABATCH_AUDIT_DATABASE" envDefault:"odatabatch"`
	AuditCollection string `env:"ODATABATCH_AUDIT_COLLECTION" envDefault:"audit_log"`
}

// FromEnv reads Config from the process environment.
func FromEnv() (*Config, error) {
	c := &Config{}
	if err := env.Parse(c); err != nil {
		return nil, err
	}
	return c, nil
}

// AuditEnabled reports whether a MongoDB audit sink is configured.
func (c *Config) AuditEnabled() bool { return c.MongoURL != "" }
