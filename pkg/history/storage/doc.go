// Package storage provides history.Store backends.
//
// MemoryStore keeps one lock per product so appends for different products
// never contend. SQLiteStore and PostgresStore persist the log so cooldown
// and daily-cap invariants survive a restart.
package storage
