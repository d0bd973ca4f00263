//go:build nocgo
// +build nocgo

package audio

import "net/http"

// NewOtoOutput reports that no audio device is available without cgo.
func NewOtoOutput(*http.Client) (Output, error) {
	return nil, ErrUnavailable
}
