package config

import (
	"encoding/json"
	"hash/fnv"
)

// fingerprint identifies a parsed config by content. It is 0 only when cfg
// cannot be encoded, which callers treat as "always changed".
func fingerprint(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
