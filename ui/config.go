package ui

import "time"

// Config contains TUI-specific configuration.
type Config struct {
	GlamourStyle string `env:"GLAMOUR_STYLE" envDefault:"auto"`
	EnableMouse  bool   `env:"KARAOKE_MOUSE"`

	// Number of queue rows shown below the lyrics.
	QueueHeight int `env:"KARAOKE_QUEUE_HEIGHT" envDefault:"6"`

	// How often the transport bar is refreshed while playing.
	RefreshInterval time.Duration `env:"KARAOKE_REFRESH" envDefault:"250ms"`

	// Volume change per +/- key press.
	VolumeStep float64 `env:"KARAOKE_VOLUME_STEP" envDefault:"0.1"`

	// Seek change per [/] key press, as a fraction of the song.
	SeekStep float64 `env:"KARAOKE_SEEK_STEP" envDefault:"0.1"`
}
