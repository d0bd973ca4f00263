package audio

import "encoding/binary"

// Decoded audio is always signed 16-bit little-endian stereo.
const (
	pcmChannels       = 2
	pcmBytesPerSample = 2
	pcmFrameSize      = pcmChannels * pcmBytesPerSample
)

// pcmDuration returns the length in seconds of n bytes of PCM at rate.
func pcmDuration(n int, rate int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(n/pcmFrameSize) / float64(rate)
}

// pcmOffset converts seconds to a frame-aligned byte offset at rate.
func pcmOffset(seconds float64, rate int) int64 {
	if seconds <= 0 {
		return 0
	}
	frames := int64(seconds * float64(rate))
	return frames * pcmFrameSize
}

// resamplePCM performs linear resampling of 16-bit stereo PCM.
func resamplePCM(input []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 {
		return input
	}

	inFrames := len(input) / pcmFrameSize
	if inFrames == 0 {
		return nil
	}
	ratio := float64(to) / float64(from)
	outFrames := int(float64(inFrames) * ratio)
	output := make([]byte, outFrames*pcmFrameSize)

	sample := func(frame, ch int) float64 {
		off := frame*pcmFrameSize + ch*pcmBytesPerSample
		return float64(int16(binary.LittleEndian.Uint16(input[off:])))
	}

	for i := 0; i < outFrames; i++ {
		pos := float64(i) / ratio
		idx := int(pos)
		frac := pos - float64(idx)

		for ch := 0; ch < pcmChannels; ch++ {
			var v float64
			if idx >= inFrames-1 {
				v = sample(inFrames-1, ch)
			} else {
				v = sample(idx, ch)*(1-frac) + sample(idx+1, ch)*frac
			}
			off := i*pcmFrameSize + ch*pcmBytesPerSample
			binary.LittleEndian.PutUint16(output[off:], uint16(int16(v)))
		}
	}
	return output
}
