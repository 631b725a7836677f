// Package storage provides decision.Store backends: in-memory, SQLite
// (mattn/go-sqlite3) and PostgreSQL (gorm).
package storage
