// Package encoder turns captured 16 kHz mono PCM into upload formats.
package encoder

import (
	"fmt"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
	AddEncodeTime(d time.Duration)
	EncodeTime() time.Duration
	Format() Format
}

// Format names an upload container.
type Format string

const (
	FormatFLAC Format = "flac"
	FormatWAV  Format = "wav"
)

func (f Format) ContentType() string {
	switch f {
	case FormatFLAC:
		return "audio/flac"
	case FormatWAV:
		return "audio/wav"
	}
	return "application/octet-stream"
}

// Filename is the multipart file name used when uploading a recording.
func (f Format) Filename() string {
	return "answer." + string(f)
}

// New returns an encoder for the given format.
func New(f Format) (Encoder, error) {
	switch f {
	case FormatFLAC, "":
		return NewFlac()
	case FormatWAV:
		return NewWav(), nil
	}
	return nil, fmt.Errorf("unsupported format %q", f)
}

// EncodeAll feeds pcm to a fresh encoder in BlockSize chunks and returns the
// finished file.
func EncodeAll(f Format, pcm []int16) ([]byte, error) {
	enc, err := New(f)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	for i := 0; i < len(pcm); i += BlockSize {
		end := min(i+BlockSize, len(pcm))
		if err := enc.EncodeBlock(pcm[i:end]); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	enc.AddEncodeTime(time.Since(start))
	return enc.Bytes(), nil
}
