package audio

import (
	"fmt"
	"time"
)

// Sample rates used by realtime voice sessions.
const (
	// InputSampleRate is the rate microphone audio is captured and sent at.
	InputSampleRate = 16000

	// OutputSampleRate is the rate model audio arrives at.
	OutputSampleRate = 24000

	// CaptureFrameSize is the number of samples per captured frame.
	CaptureFrameSize = 4096
)

// Blob is an encoded chunk of audio as carried by a realtime session.
// Data holds base64 little-endian int16 PCM; MIMEType carries the rate,
// e.g. "audio/pcm;rate=16000".
type Blob struct {
	Data     string
	MIMEType string
}

// Buffer is decoded mono PCM ready for playback.
type Buffer struct {
	// Samples are normalised to [-1, 1].
	Samples []float32

	// SampleRate in Hz.
	SampleRate int
}

// Duration returns the playback length of the buffer. A buffer with a
// non-positive sample rate has zero duration.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// PCMMimeType returns the MIME type for raw 16-bit PCM at the given rate.
func PCMMimeType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}
