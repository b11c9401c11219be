// Package watermarkchain is the module root; it exists to embed assets
// shared across the internal packages and cmd/watermarkctl.
package watermarkchain

import "embed"

// MigrationFS embeds the SQLite schema for the derived ledger index
// (internal/ledgerindex), shipping the SQL migrations inside the binary
// rather than reading them off disk at runtime.
//
//go:embed migrations/*
var MigrationFS embed.FS
