package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}

// FormatConverter converts interleaved sample blocks to a mono target rate.
// It logs a warning on the first format mismatch.
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	// Target is the output format. Only mono targets are produced; a Target
	// with more than one channel is treated as mono.
	Target         Format
	warnedMismatch sync.Once
}

// Convert downmixes then resamples interleaved samples in src format. If src
// already matches the target, the input slice is returned unchanged.
func (c *FormatConverter) Convert(samples []float32, src Format) []float32 {
	if src.Channels <= 1 && src.SampleRate == c.Target.SampleRate {
		return samples
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", src.String(),
			"to", Format{SampleRate: c.Target.SampleRate, Channels: 1}.String(),
		)
	})

	out := samples
	if src.Channels > 1 {
		out = Downmix(out, src.Channels)
	}
	return Resample(out, src.SampleRate, c.Target.SampleRate)
}

// Downmix averages each interleaved frame of the given channel count into a
// single mono sample. Incomplete trailing frames are dropped.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += interleaved[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match or either is non-positive the input is
// returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}
