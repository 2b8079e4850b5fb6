package speech

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows one context per process, so the first clip fixes the output rate
// and later clips are resampled to it.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func otoContext(rate int) (*oto.Context, int, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: 2,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   50 * time.Millisecond,
		})
		if otoErr != nil {
			otoErr = fmt.Errorf("oto init: %w", otoErr)
			return
		}
		<-ready
		otoRate = rate
	})
	return otoCtx, otoRate, otoErr
}

// OtoPlayer plays MP3 or WAV clips through the process-wide oto context.
type OtoPlayer struct {
	mu sync.Mutex
}

func NewOtoPlayer() *OtoPlayer { return &OtoPlayer{} }

// Play decodes clip and blocks until it finished playing. Cancelling ctx
// stops playback early. Clips never overlap.
func (p *OtoPlayer) Play(ctx context.Context, clip []byte) error {
	pcm, err := decodeClip(clip)
	if err != nil {
		return err
	}
	if len(pcm.data) == 0 {
		return nil
	}
	octx, rate, err := otoContext(pcm.rate)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	player := octx.NewPlayer(bytes.NewReader(resample(pcm.data, pcm.rate, rate)))
	defer player.Close()
	player.Play()

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}
