package telemetry

import (
	"os"
	"strconv"
	"strings"
)

// DefaultServiceName is reported when OTEL_SERVICE_NAME is unset.
const DefaultServiceName = "callpath"

// Config holds OpenTelemetry settings read from the standard OTEL_*
// environment variables.
type Config struct {
	Enabled        bool              // OTEL_ENABLED
	ServiceName    string            // OTEL_SERVICE_NAME
	ServiceVersion string            // OTEL_SERVICE_VERSION
	Endpoint       string            // OTEL_EXPORTER_OTLP_ENDPOINT
	Protocol       string            // OTEL_EXPORTER_OTLP_PROTOCOL: grpc or http/protobuf
	Headers        map[string]string // OTEL_EXPORTER_OTLP_HEADERS, "k=v,k=v"
	Insecure       bool              // OTEL_EXPORTER_OTLP_INSECURE
	Sampler        string            // OTEL_TRACES_SAMPLER
	SamplerArg     string            // OTEL_TRACES_SAMPLER_ARG
	ResourceAttrs  map[string]string // OTEL_RESOURCE_ATTRIBUTES, "k=v,k=v"
}

// LoadFromEnv reads the configuration from the environment.
func LoadFromEnv() *Config {
	return &Config{
		Enabled:        envBool("OTEL_ENABLED"),
		ServiceName:    envOr("OTEL_SERVICE_NAME", DefaultServiceName),
		ServiceVersion: envOr("OTEL_SERVICE_VERSION", "unknown"),
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Protocol:       envOr("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
		Headers:        parseKeyValuePairs(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Insecure:       envBool("OTEL_EXPORTER_OTLP_INSECURE"),
		Sampler:        os.Getenv("OTEL_TRACES_SAMPLER"),
		SamplerArg:     os.Getenv("OTEL_TRACES_SAMPLER_ARG"),
		ResourceAttrs:  parseKeyValuePairs(os.Getenv("OTEL_RESOURCE_ATTRIBUTES")),
	}
}

// UseHTTP reports whether the exporter speaks OTLP over HTTP.
func (c *Config) UseHTTP() bool {
	p := strings.ToLower(c.Protocol)
	return p == "http" || p == "http/protobuf"
}

// SamplerRatio returns SamplerArg clamped to [0, 1], or 1 when unset or
// malformed.
func (c *Config) SamplerRatio() float64 {
	r, err := strconv.ParseFloat(strings.TrimSpace(c.SamplerArg), 64)
	if err != nil {
		return 1
	}
	return min(max(r, 0), 1)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

// parseKeyValuePairs splits "k1=v1,k2=v2". Values may contain '='; pairs
// without a key are dropped.
func parseKeyValuePairs(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}
