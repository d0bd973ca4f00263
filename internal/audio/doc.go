// Package audio owns the single playback resource. An Output plays one
// source at a time (oto on real devices, MockOutput in tests and dry runs)
// and the Controller layers source selection, transport controls, volume
// and end-of-track handling on top of it.
package audio
