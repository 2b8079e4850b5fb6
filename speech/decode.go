package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

var errUnsupportedClip = errors.New("unsupported audio clip")

// pcmClip is interleaved stereo signed 16-bit little-endian PCM.
type pcmClip struct {
	data []byte
	rate int
}

// decodeClip sniffs the container and decodes to stereo s16le.
func decodeClip(clip []byte) (pcmClip, error) {
	if len(clip) >= 12 && string(clip[:4]) == "RIFF" && string(clip[8:12]) == "WAVE" {
		return decodeWAV(clip)
	}
	d, err := mp3.NewDecoder(bytes.NewReader(clip))
	if err != nil {
		return pcmClip{}, fmt.Errorf("%w: %w", errUnsupportedClip, err)
	}
	data, err := io.ReadAll(d)
	if err != nil {
		return pcmClip{}, fmt.Errorf("decode mp3: %w", err)
	}
	return pcmClip{data: data, rate: d.SampleRate()}, nil
}

// decodeWAV handles canonical PCM16 WAV files with one or two channels.
func decodeWAV(clip []byte) (pcmClip, error) {
	if len(clip) < 44 {
		return pcmClip{}, fmt.Errorf("%w: short wav header", errUnsupportedClip)
	}
	channels := int(binary.LittleEndian.Uint16(clip[22:24]))
	rate := int(binary.LittleEndian.Uint32(clip[24:28]))
	bits := int(binary.LittleEndian.Uint16(clip[34:36]))
	if bits != 16 || (channels != 1 && channels != 2) || rate <= 0 {
		return pcmClip{}, fmt.Errorf("%w: %d-bit %d-channel wav", errUnsupportedClip, bits, channels)
	}

	raw := clip[44:]
	raw = raw[:len(raw)/2*2]
	if channels == 2 {
		return pcmClip{data: raw, rate: rate}, nil
	}
	out := make([]byte, len(raw)*2)
	for i := 0; i+1 < len(raw); i += 2 {
		copy(out[i*2:], raw[i:i+2])
		copy(out[i*2+2:], raw[i:i+2])
	}
	return pcmClip{data: out, rate: rate}, nil
}

// resample converts stereo s16le PCM between sample rates by linear
// interpolation.
func resample(data []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 {
		return data
	}
	inFrames := len(data) / 4
	if inFrames == 0 {
		return nil
	}
	outFrames := int(int64(inFrames) * int64(to) / int64(from))
	out := make([]byte, outFrames*4)
	sample := func(frame, ch int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(data[frame*4+ch*2:])))
	}
	step := float64(from) / float64(to)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		k := min(j+1, inFrames-1)
		for ch := 0; ch < 2; ch++ {
			v := sample(j, ch)*(1-frac) + sample(k, ch)*frac
			binary.LittleEndian.PutUint16(out[i*4+ch*2:], uint16(int16(v)))
		}
	}
	return out
}
