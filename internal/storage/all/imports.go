// Package all wires every built-in SQL dialect into the storage registry.
//
// It exists purely for side effects: a blank import runs the init functions
// of the dialect packages, which register themselves with storage.Register.
// After that, storage.Open accepts the kinds
//
//   - "sqlite"   (catalogetl/internal/storage/sqlite, the default)
//   - "postgres" (catalogetl/internal/storage/postgres)
//   - "mysql"    (catalogetl/internal/storage/mysql)
//   - "mssql"    (catalogetl/internal/storage/mssql)
//
// A binary that needs only a subset can import the dialect packages
// directly instead.
package all

import (
	_ "catalogetl/internal/storage/mssql"
	_ "catalogetl/internal/storage/mysql"
	_ "catalogetl/internal/storage/postgres"
	_ "catalogetl/internal/storage/sqlite"
)
