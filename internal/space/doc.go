// Package space provides the foundational types shared by every nbstore package.
//
// This package contains type definitions only. All other internal packages
// import space; space imports nothing internal.
//
// Key design constraints:
//   - A space is identified by (Type, ID); no operation crosses spaces
//   - Space IDs are NFC-normalised so visually identical IDs share one store
//   - All JSON tags use the camelCase names of the IPC surface
//   - Timestamps are persisted with millisecond precision
package space
