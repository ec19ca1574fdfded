// Package all wires the built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each concrete backend, which register
// their factories with the storage package. Importing it makes the kinds
// "postgres", "sqlite", and "mysql" available at runtime.
//
// A binary that only needs a subset of backends can blank-import the
// individual backend packages instead.
package all

import (
	_ "playetl/internal/storage/mysql"
	_ "playetl/internal/storage/postgres"
	_ "playetl/internal/storage/sqlite"
)
