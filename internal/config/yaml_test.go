package config

import (
	"strings"
	"testing"
)

func TestDecodeYAMLAliasesAndDuplicates(t *testing.T) {
	cfg, err := Decode("c.yml", []byte(`
server:
  tokens: &toks ["a", "b"]
broker:
  workers: 3
  normal_ttl: 90s
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Server.Tokens) != 2 || cfg.Broker.Workers != 3 || cfg.Broker.NormalTTL != "90s" {
		t.Fatalf("decoded: %+v", cfg)
	}

	_, err = Decode("c.yaml", []byte("broker:\n  workers: 1\n  workers: 2\n"))
	if err == nil || !strings.Contains(err.Error(), "yaml config") {
		t.Fatalf("duplicate key: %v", err)
	}

	cfg, err = Decode("c.yaml", nil)
	if err != nil || cfg.Broker.Workers != 0 {
		t.Fatalf("empty: %+v %v", cfg, err)
	}
}
