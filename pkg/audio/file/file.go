// Package file implements [audio.Microphone] and [audio.Speaker] on top of
// plain files so voice sessions can run without sound hardware.
//
// Capture reads a 16-bit PCM WAV file, or headerless little-endian int16
// PCM in a configured format, converts it to the requested rate and
// optionally paces frames in real time. Playback writes scheduled buffers as
// raw little-endian int16 PCM to a file or stdout with a wall clock.
package file

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/soulecho/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Microphone = (*Microphone)(nil)
	_ audio.Speaker    = (*Speaker)(nil)
)

// ErrUnsupportedFormat is returned for WAV files that are not 16-bit PCM.
var ErrUnsupportedFormat = errors.New("file: unsupported audio format")

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone captures from a file.
type Microphone struct {
	// Path of the WAV or raw PCM file.
	Path string

	// Raw is the format of a headerless file. Defaults to 16 kHz mono.
	Raw audio.Format

	// FrameSize is the number of output samples per frame. Defaults to
	// [audio.CaptureFrameSize].
	FrameSize int

	// Realtime paces frames at the rate they would be captured live.
	Realtime bool
}

// Open implements [audio.Microphone].
func (m *Microphone) Open(ctx context.Context, sampleRate int) (audio.InputStream, error) {
	f, err := os.Open(m.Path)
	if err != nil {
		return nil, fmt.Errorf("file: open microphone: %w", err)
	}

	r := bufio.NewReader(f)
	src, err := readFormat(r, m.Raw)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("file: open microphone %s: %w", m.Path, err)
	}

	frameSize := m.FrameSize
	if frameSize <= 0 {
		frameSize = audio.CaptureFrameSize
	}

	s := &inputStream{
		f:      f,
		frames: make(chan []float32, 4),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.pump(ctx, r, src, sampleRate, frameSize, m.Realtime)
	return s, nil
}

type inputStream struct {
	f         *os.File
	frames    chan []float32
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

func (s *inputStream) Frames() <-chan []float32 { return s.frames }

func (s *inputStream) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *inputStream) Close() error {
	s.closeOnce.Do(func() {
		s.Stop()
		<-s.done
		s.closeErr = s.f.Close()
	})
	return s.closeErr
}

func (s *inputStream) pump(ctx context.Context, r io.Reader, src audio.Format, rate, frameSize int, realtime bool) {
	defer close(s.done)
	defer close(s.frames)

	conv := audio.FormatConverter{Target: audio.Format{SampleRate: rate, Channels: 1}}

	// Read enough source samples to produce roughly frameSize output samples.
	srcSamples := frameSize * src.Channels
	if src.SampleRate != rate && rate > 0 {
		srcSamples = int(int64(frameSize)*int64(src.SampleRate)/int64(rate)) * src.Channels
	}
	raw := make([]byte, srcSamples*2)

	var tick <-chan time.Time
	if realtime && rate > 0 {
		t := time.NewTicker(time.Duration(frameSize) * time.Second / time.Duration(rate))
		defer t.Stop()
		tick = t.C
	}

	for {
		n, err := io.ReadFull(r, raw)
		if n > 1 {
			frame := conv.Convert(audio.DecodePCM16(raw[:n-n%2]), src)
			if tick != nil {
				select {
				case <-tick:
				case <-s.stop:
					return
				case <-ctx.Done():
					return
				}
			}
			select {
			case s.frames <- frame:
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				slog.Warn("file microphone: read failed", "err", err)
			}
			return
		}
	}
}

// readFormat consumes a WAV header when present and returns the source
// format. Headerless input is assumed to be raw PCM in the given format.
func readFormat(r *bufio.Reader, raw audio.Format) (audio.Format, error) {
	if raw.SampleRate <= 0 {
		raw.SampleRate = audio.InputSampleRate
	}
	if raw.Channels <= 0 {
		raw.Channels = 1
	}

	magic, err := r.Peek(12)
	if err != nil || string(magic[0:4]) != "RIFF" || string(magic[8:12]) != "WAVE" {
		return raw, nil
	}
	if _, err := r.Discard(12); err != nil {
		return audio.Format{}, err
	}

	var format audio.Format
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return audio.Format{}, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := int(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return audio.Format{}, fmt.Errorf("read fmt chunk: %w", err)
			}
			if size < 16 {
				return audio.Format{}, ErrUnsupportedFormat
			}
			codec := binary.LittleEndian.Uint16(body[0:2])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if codec != 1 || bits != 16 {
				return audio.Format{}, fmt.Errorf("%w: codec %d, %d bits", ErrUnsupportedFormat, codec, bits)
			}
			format.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
		case "data":
			if format.SampleRate == 0 {
				return audio.Format{}, fmt.Errorf("%w: data before fmt chunk", ErrUnsupportedFormat)
			}
			return format, nil
		default:
			if _, err := r.Discard(size); err != nil {
				return audio.Format{}, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
		if size%2 == 1 {
			if _, err := r.Discard(1); err != nil {
				return audio.Format{}, err
			}
		}
	}
}

// ─── Speaker ──────────────────────────────────────────────────────────────────

// Speaker plays into a file. Path "-" writes to stdout.
type Speaker struct {
	Path string
}

// Open implements [audio.Speaker]. Buffers are written at sampleRate.
func (s *Speaker) Open(_ context.Context, sampleRate int) (audio.Output, error) {
	var w io.WriteCloser
	if s.Path == "-" || s.Path == "" {
		w = nopCloser{os.Stdout}
	} else {
		f, err := os.Create(s.Path)
		if err != nil {
			return nil, fmt.Errorf("file: open speaker: %w", err)
		}
		w = f
	}
	return NewOutput(w, sampleRate), nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// Output writes scheduled buffers to w when their start time arrives.
type Output struct {
	start time.Time
	rate  int

	mu      sync.Mutex
	w       io.WriteCloser
	closed  bool
	sources map[*source]struct{}
}

// NewOutput returns an output whose clock starts now.
func NewOutput(w io.WriteCloser, sampleRate int) *Output {
	return &Output{
		start:   time.Now(),
		rate:    sampleRate,
		w:       w,
		sources: make(map[*source]struct{}),
	}
}

// Now implements [audio.Output].
func (o *Output) Now() time.Duration {
	return time.Since(o.start)
}

// Play implements [audio.Output].
func (o *Output) Play(buf audio.Buffer, at time.Duration, onEnded func()) audio.Source {
	src := &source{out: o}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		src.stopped = true
		return src
	}
	o.sources[src] = struct{}{}

	pcm := audio.EncodePCM16(audio.Resample(buf.Samples, buf.SampleRate, o.rate))
	dur := buf.Duration()
	delay := max(at-o.Now(), 0)

	src.timer = time.AfterFunc(delay, func() {
		if !o.write(src, pcm) {
			return
		}
		src.mu.Lock()
		if src.stopped {
			src.mu.Unlock()
			return
		}
		src.timer = time.AfterFunc(dur, func() {
			if src.finish() && onEnded != nil {
				onEnded()
			}
		})
		src.mu.Unlock()
	})
	return src
}

func (o *Output) write(src *source, pcm []byte) bool {
	src.mu.Lock()
	stopped := src.stopped
	src.mu.Unlock()
	if stopped {
		return false
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	if _, err := o.w.Write(pcm); err != nil {
		slog.Warn("file speaker: write failed", "err", err)
	}
	return true
}

func (o *Output) remove(src *source) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sources, src)
}

// Closed implements [audio.Output].
func (o *Output) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Close implements [audio.Output].
func (o *Output) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	pending := make([]*source, 0, len(o.sources))
	for s := range o.sources {
		pending = append(pending, s)
	}
	o.sources = make(map[*source]struct{})
	o.mu.Unlock()

	for _, s := range pending {
		s.halt()
	}
	return o.w.Close()
}

type source struct {
	out *Output

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// Stop implements [audio.Source].
func (s *source) Stop() {
	s.halt()
	s.out.remove(s)
}

func (s *source) halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
}

// finish marks a naturally ended source. It reports false if the source was
// stopped first.
func (s *source) finish() bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.stopped = true
	s.mu.Unlock()
	s.out.remove(s)
	return true
}
