// Package queue owns the ordered song queue and the current selection.
// It mediates between the local store, the preparation pipeline and the
// playback controller: every mutation is persisted, new items are handed
// to the pipeline, and selection changes load the audio output.
package queue
