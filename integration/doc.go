//go:build integration

// Package integration exercises the client against a real registry:2
// container.
//
// These tests require Docker and are skipped unless the integration
// build tag is set. Run with: go test -tags=integration ./integration/...
package integration
