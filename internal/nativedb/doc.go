// Package nativedb is the SQLite engine behind the native storages.
//
// Each space owns one database file holding its documents, blobs and peer
// clocks. A DB serialises writes through a single connection; every
// multi-statement operation runs in one transaction.
package nativedb
