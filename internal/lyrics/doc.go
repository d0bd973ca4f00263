// Package lyrics parses timed (LRC style) lyrics and maps a playback
// position onto per-line display state. Everything here is pure so it can
// be tested without a renderer or an audio device.
package lyrics
