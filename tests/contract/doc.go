// Package contract replays recorded provider responses through the
// completion proxy to verify it handles real upstream payloads without
// making network calls.
//
// Run with: go test -tags=contract ./tests/contract/...
package contract
