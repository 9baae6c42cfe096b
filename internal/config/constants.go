package config

import "time"

const (
	// Database pool sizing
	PoolMaxConns = 20
	PoolMinConns = 5

	// bcrypt work factor for stored password hashes
	BcryptCost = 10

	// Maximum accepted length of a single protocol line
	MaxLineLen = 1 << 20

	// Timeout for the startup backend reachability probe
	PingTimeout = 3 * time.Second

	// Default number of history entries shown by the client's /history command
	DefaultHistoryShown = 20
)
