// Package model defines the queue data model shared by the queue manager,
// the preparation pipeline and the playback controller.
package model
