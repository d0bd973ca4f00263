// Package backend is the HTTP client for the song collaborators: search,
// lyrics retrieval, raw audio resolution, instrumental processing and the
// readiness probe.
package backend
