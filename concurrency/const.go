// concurrency/const.go
package concurrency

import "time"

const (
	// DefaultMaxConcurrency is the number of gateway requests allowed in flight at once.
	DefaultMaxConcurrency = 10

	// MinConcurrency represents the minimum allowed concurrent requests.
	MinConcurrency = 1

	// DefaultAcquireTimeout bounds how long a request waits for a permit.
	DefaultAcquireTimeout = 10 * time.Second
)
