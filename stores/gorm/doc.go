//go:build !wasm

// Package gorm provides a GORM-based implementation of the tutorauth
// credential store. It targets PostgreSQL through gorm.io/driver/postgres but
// works with any database GORM supports that enforces unique indexes.
//
// # Database Schema
//
// The package auto-migrates a single table:
//   - credentials: accounts with their password hash, linked Google subject,
//     one-time verification and reset tokens, role, preferences and progress
//
// Email and google_id carry unique indexes; the store maps violations of
// either to the tutorauth duplicate errors.
//
// # Usage
//
//	db, _ := gormstore.Open(dsn)
//	if err := gormstore.AutoMigrate(db); err != nil { ... }
//	store := gormstore.NewCredentialStore(db)
package gorm
