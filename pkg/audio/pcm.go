package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"mime"
	"strconv"
)

// Quantize converts a normalised sample to int16 by scaling with 32768.
// Values outside [-1, 1] are clamped to the int16 range and NaN maps to
// silence.
func Quantize(s float32) int16 {
	v := float64(s) * 32768
	switch {
	case math.IsNaN(v):
		return 0
	case v >= 32767:
		return 32767
	case v <= -32768:
		return -32768
	}
	return int16(v)
}

// EncodePCM16 quantizes samples and packs them as little-endian int16.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(Quantize(s)))
	}
	return out
}

// DecodePCM16 unpacks little-endian int16 PCM into samples divided by 32768.
// A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out
}

// NewBlob encodes a captured frame for transmission at the given rate.
func NewBlob(samples []float32, rate int) Blob {
	return Blob{
		Data:     base64.StdEncoding.EncodeToString(EncodePCM16(samples)),
		MIMEType: PCMMimeType(rate),
	}
}

// DecodeBlob decodes a received chunk into a playable buffer. The rate is
// read from the MIME type's "rate" parameter when present, otherwise
// fallbackRate is used.
func DecodeBlob(b Blob, fallbackRate int) (Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(b.Data)
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: decode blob: %w", err)
	}
	return Buffer{Samples: DecodePCM16(raw), SampleRate: blobRate(b.MIMEType, fallbackRate)}, nil
}

func blobRate(mimeType string, fallback int) int {
	if mimeType == "" {
		return fallback
	}
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return fallback
	}
	rate, err := strconv.Atoi(params["rate"])
	if err != nil || rate <= 0 {
		return fallback
	}
	return rate
}
