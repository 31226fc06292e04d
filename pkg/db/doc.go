// Package db provides database connection utilities for phivault.
//
// The world state and ledger events of the gorm ledger backend live in
// PostgreSQL. Schema is managed by the migrations under db/migrations,
// applied with `phivaultctl db migrate`.
//
// # Connection
//
//	database, err := db.Connect(db.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	l := ledger.New(gormledger.New(database))
//
// # Environment Variables
//
//   - DATABASE_URL: PostgreSQL connection string (required)
//   - PHIVAULT_LOG_LEVEL: Set to "debug" for SQL query logging
package db
