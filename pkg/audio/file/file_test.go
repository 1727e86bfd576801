package file_test

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/soulecho/pkg/audio"
	"github.com/MrWong99/soulecho/pkg/audio/file"
)

// writeWAV writes a 16-bit PCM WAV file with n frames of a constant sample.
func writeWAV(t *testing.T, path string, rate, channels, n int, sample int16) {
	t.Helper()
	data := make([]byte, n*channels*2)
	for i := 0; i < n*channels; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(sample))
	}

	var hdr []byte
	hdr = append(hdr, "RIFF"...)
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(36+len(data)))
	hdr = append(hdr, "WAVEfmt "...)
	hdr = binary.LittleEndian.AppendUint32(hdr, 16)
	hdr = binary.LittleEndian.AppendUint16(hdr, 1)
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(channels))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(rate))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(rate*channels*2))
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(channels*2))
	hdr = binary.LittleEndian.AppendUint16(hdr, 16)
	hdr = append(hdr, "data"...)
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(len(data)))

	if err := os.WriteFile(path, append(hdr, data...), 0o600); err != nil {
		t.Fatalf("write wav: %v", err)
	}
}

func collect(t *testing.T, in audio.InputStream) [][]float32 {
	t.Helper()
	var frames [][]float32
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-in.Frames():
			if !ok {
				return frames
			}
			frames = append(frames, f)
		case <-timeout:
			t.Fatal("timed out waiting for frames")
		}
	}
}

func TestMicrophone_WAVStereoResampled(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "in.wav")
	// 48 kHz stereo, 9600 frames = 200 ms → 3200 samples at 16 kHz.
	writeWAV(t, path, 48000, 2, 9600, 16384)

	mic := &file.Microphone{Path: path, FrameSize: 1600}
	in, err := mic.Open(context.Background(), 16000)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer in.Close()

	frames := collect(t, in)
	total := 0
	for _, f := range frames {
		total += len(f)
		for _, s := range f {
			if s != 0.5 {
				t.Fatalf("sample = %f, want 0.5", s)
			}
		}
	}
	if total != 3200 {
		t.Errorf("total samples = %d, want 3200", total)
	}
}

func TestMicrophone_RawPCM(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "in.pcm")
	if err := os.WriteFile(path, make([]byte, 8192*2), 0o600); err != nil {
		t.Fatal(err)
	}

	mic := &file.Microphone{Path: path}
	in, err := mic.Open(context.Background(), 16000)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer in.Close()

	frames := collect(t, in)
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	if len(frames[0]) != audio.CaptureFrameSize {
		t.Errorf("frame size = %d, want %d", len(frames[0]), audio.CaptureFrameSize)
	}
}

func TestMicrophone_StopClosesFrames(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "in.pcm")
	if err := os.WriteFile(path, make([]byte, 16000*2*10), 0o600); err != nil {
		t.Fatal(err)
	}

	mic := &file.Microphone{Path: path, Realtime: true}
	in, err := mic.Open(context.Background(), 16000)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	in.Stop()
	in.Stop()
	collect(t, in)
	if err := in.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestMicrophone_MissingFile(t *testing.T) {
	t.Parallel()

	mic := &file.Microphone{Path: filepath.Join(t.TempDir(), "nope.wav")}
	if _, err := mic.Open(context.Background(), 16000); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestMicrophone_UnsupportedWAV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "in.wav")
	writeWAV(t, path, 16000, 1, 10, 0)
	raw, _ := os.ReadFile(path)
	// Patch bits per sample to 8.
	binary.LittleEndian.PutUint16(raw[34:36], 8)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	mic := &file.Microphone{Path: path}
	_, err := mic.Open(context.Background(), 16000)
	if !errors.Is(err, file.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestSpeaker_PlayWritesAndEnds(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.pcm")
	spk := &file.Speaker{Path: path}
	out, err := spk.Open(context.Background(), 24000)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ended := make(chan struct{})
	buf := audio.Buffer{Samples: make([]float32, 240), SampleRate: 24000}
	out.Play(buf, out.Now(), func() { close(ended) })

	select {
	case <-ended:
	case <-time.After(5 * time.Second):
		t.Fatal("onEnded not called")
	}

	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !out.Closed() {
		t.Error("Closed() = false after Close")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 480 {
		t.Errorf("written bytes = %d, want 480", info.Size())
	}
}

func TestSpeaker_StopBeforeStart(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.pcm")
	spk := &file.Speaker{Path: path}
	out, err := spk.Open(context.Background(), 24000)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	called := make(chan struct{}, 1)
	buf := audio.Buffer{Samples: make([]float32, 240), SampleRate: 24000}
	src := out.Play(buf, out.Now()+time.Hour, func() { called <- struct{}{} })
	src.Stop()
	src.Stop()

	select {
	case <-called:
		t.Fatal("onEnded fired for stopped source")
	case <-time.After(50 * time.Millisecond):
	}
	_ = out.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("written bytes = %d, want 0", info.Size())
	}
}
