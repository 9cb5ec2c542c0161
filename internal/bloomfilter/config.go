package bloomfilter

import "github.com/datnguyenzzz/bloomd/internal/config"

// Config is the per-filter configuration a custom_config (spec.md §3)
// overrides the manager default with. It is a narrower view onto
// config.Config: only the knobs that are meaningful per filter rather
// than manager-wide.
type Config struct {
	BitsPerKey int
	Capacity   int
	InMemory   bool
	Proxied    bool
	SyncPolicy config.SyncPolicy
}

// FromManagerDefault projects the manager-wide default onto a per-filter
// Config, the value create() uses when the caller supplies no override.
func FromManagerDefault(c config.Config) Config {
	return Config{
		BitsPerKey: c.BitsPerKey,
		Capacity:   c.DefaultCapacity,
		InMemory:   c.InMemory,
		Proxied:    c.Proxied,
		SyncPolicy: c.SyncPolicy,
	}
}
