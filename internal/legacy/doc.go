// Package legacy reads documents from the deprecated v1 database format.
//
// A v1 database keeps a flat log of updates per space with no snapshots and
// no clocks. The root document of a space is stored with a NULL doc_id.
// The backend is read-only: pushes are accepted and dropped so callers that
// still write through it keep working while data is imported elsewhere.
package legacy
