// Package history tracks applied price changes per product.
//
// The change log is the only input to cooldown and daily-cap decisions. There
// are no counters to drift: every query reads the ordered log for the
// product through the Store interface.
//
// Backends live in the storage sub-package:
//   - storage.MemoryStore: per-product locked slices, no persistence
//   - storage.SQLiteStore: durable log on modernc.org/sqlite
//   - storage.PostgresStore: durable log on gorm + postgres
//
// Pruner drops entries older than the retention window (30 days by default)
// and Scheduler runs it on a cron schedule.
package history
