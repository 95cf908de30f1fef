// Package configstore implements the dynamic, DB-backed key/value
// configuration surface the control API exposes at runtime — distinct
// from config.Config, the static viper bootstrap that locates the
// database, binds the process to a port and sizes the rate limiter.
package configstore

import "context"

// Store is the persistence boundary for raw key/value config rows.
// pkg/storage/sqlite implements it against the app_config table, mirroring
// how pkg/ratelimit.Store keeps its persistence concern out of the
// pkg/storage import.
type Store interface {
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error
	AllConfig(ctx context.Context) (map[string]string, error)
}
