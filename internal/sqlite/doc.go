// Package sqlite implements the doc, blob and sync storages on the native
// SQLite backend.
//
// The three storages of a space share one database handle through a
// connection.Arena, keyed by the share id "sqlite:<type>:<id>". Every
// operation connects implicitly, so a write after Disconnect reopens the
// database.
package sqlite
