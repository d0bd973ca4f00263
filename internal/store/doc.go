// Package store persists player state in a small key/value store: the queue
// snapshot, a time-boxed lyrics cache and the volume preference. Storage
// failures never escape this package; they are logged and treated as
// "nothing stored".
package store
