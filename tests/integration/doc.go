// Package integration runs the storage backends against real PostgreSQL and
// MongoDB instances started with testcontainers.
//
// Run with: go test -tags=integration ./tests/integration/...
package integration
