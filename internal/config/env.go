package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Environment variables that override the file.
const (
	EnvTokens  = "SECRET_TOKENS" // comma-separated; replaces server.tokens
	EnvWorkers = "NUM_THREADS"
	EnvPort    = "PORT" // replaces the port of server.addr
)

// ApplyEnv applies environment overrides. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		return nil
	}
	if raw := strings.TrimSpace(getenv(EnvTokens)); raw != "" {
		c.Server.Tokens = splitTokens(raw)
	}
	if raw := strings.TrimSpace(getenv(EnvWorkers)); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fmt.Errorf("%s: invalid worker count %q", EnvWorkers, raw)
		}
		c.Broker.Workers = n
	}
	if raw := strings.TrimSpace(getenv(EnvPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("%s: invalid port %q", EnvPort, raw)
		}
		host := ""
		if i := strings.LastIndex(c.Server.Addr, ":"); i >= 0 {
			host = c.Server.Addr[:i]
		}
		c.Server.Addr = host + ":" + strconv.Itoa(port)
	}
	return nil
}

func splitTokens(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
