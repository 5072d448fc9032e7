package session

import (
	"time"

	"github.com/mckoi/mckoiddb/pkg/config"
	"github.com/mckoi/mckoiddb/pkg/types"
)

// Default per-call timeouts (spec.md §5).
const (
	DefaultBlockReadTimeout  = 5 * time.Second
	DefaultBlockWriteTimeout = 10 * time.Second
	DefaultDirectoryTimeout  = 2 * time.Second
)

// DefaultReplicationFactor is how many block servers a freshly flushed
// node is written to when a session picks replicas itself (spec.md §4.1
// "replicated across block servers" sets no fixed number; 3 matches the
// acceptance scenarios of spec.md §8, e.g. S5's "three block servers hold
// node N").
const DefaultReplicationFactor = 3

// Config configures a Session. ClientConfig carries the spec.md §6.1
// "Client" keys as-is (manager_address, network_password, the two cache
// sizes); RootAddresses and ReplicationFactor are this package's own
// additions, since spec.md leaves path-to-root-server discovery and the
// replica count unspecified (see DESIGN.md's Open Question decisions).
type Config struct {
	config.ClientConfig

	// RootAddresses maps a path to the root server address that owns it.
	// spec.md doesn't define a discovery protocol for this; an operator
	// configures it directly, the same way network_nodelist is configured
	// directly rather than discovered.
	RootAddresses map[types.PathName]string

	// ReplicationFactor is how many block servers a flushed node is
	// written to. Defaults to DefaultReplicationFactor.
	ReplicationFactor int

	BlockReadTimeout  time.Duration
	BlockWriteTimeout time.Duration
	DirectoryTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReplicationFactor <= 0 {
		c.ReplicationFactor = DefaultReplicationFactor
	}
	if c.BlockReadTimeout <= 0 {
		c.BlockReadTimeout = DefaultBlockReadTimeout
	}
	if c.BlockWriteTimeout <= 0 {
		c.BlockWriteTimeout = DefaultBlockWriteTimeout
	}
	if c.DirectoryTimeout <= 0 {
		c.DirectoryTimeout = DefaultDirectoryTimeout
	}
	if c.TransactionCacheSize <= 0 {
		c.TransactionCacheSize = 1 << 20
	}
	if c.GlobalCacheSize <= 0 {
		c.GlobalCacheSize = 16 << 20
	}
	return c
}
