// Package ipc exposes the store registry to other processes.
//
// API is the cross-process surface: sixteen storage methods addressed by
// space key plus a connection status stream. Handlers implements it in the
// process that owns the native backend; Daemon serves Handlers over a Unix
// domain socket; Client implements API on the other end of that socket.
//
// Wire format: one JSON object per line. Requests carry an id, a method and
// flat params; responses echo the id with ok/result or error/code. A
// "subscribe" request turns its connection into a stream of event lines.
package ipc
