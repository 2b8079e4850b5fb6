package encoder

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"
)

// WavHeaderSize is the size of the canonical PCM RIFF header written by WavEncoder.
const WavHeaderSize = 44

// WavEncoder buffers PCM and prepends a RIFF header on Close.
type WavEncoder struct {
	mu         sync.Mutex
	pcm        bytes.Buffer
	out        []byte
	frames     uint64
	encodeTime time.Duration
}

func NewWav() *WavEncoder {
	return &WavEncoder{}
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range block {
		e.pcm.WriteByte(byte(s))
		e.pcm.WriteByte(byte(s >> 8))
	}
	e.frames += uint64(len(block))
	return nil
}

func (e *WavEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.out == nil {
		e.out = WavBytes(e.pcm.Bytes())
	}
	return nil
}

func (e *WavEncoder) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out
}

func (e *WavEncoder) TotalFrames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

func (e *WavEncoder) AddEncodeTime(d time.Duration) {
	e.mu.Lock()
	e.encodeTime += d
	e.mu.Unlock()
}

func (e *WavEncoder) EncodeTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encodeTime
}

func (e *WavEncoder) Format() Format { return FormatWAV }

// WavBytes wraps little-endian 16-bit mono PCM at SampleRate in a WAV container.
func WavBytes(pcm []byte) []byte {
	const byteRate = SampleRate * Channels * BitsPerSample / 8
	out := make([]byte, WavHeaderSize+len(pcm))
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+len(pcm)))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1)
	binary.LittleEndian.PutUint16(out[22:], Channels)
	binary.LittleEndian.PutUint32(out[24:], SampleRate)
	binary.LittleEndian.PutUint32(out[28:], byteRate)
	binary.LittleEndian.PutUint16(out[32:], Channels*BitsPerSample/8)
	binary.LittleEndian.PutUint16(out[34:], BitsPerSample)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(len(pcm)))
	copy(out[WavHeaderSize:], pcm)
	return out
}

// PCMFromWav returns the samples following a canonical 44-byte header.
func PCMFromWav(data []byte) []int16 {
	if len(data) <= WavHeaderSize {
		return nil
	}
	raw := data[WavHeaderSize:]
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return samples
}
