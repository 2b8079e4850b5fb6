// Package speech speaks prompts aloud: it fetches synthesized audio from the
// backend, caches it per prompt text and plays it to completion.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"insulink/backend"
	"insulink/log"
)

// prefetchLimit bounds concurrent /tts requests during Prefetch.
const prefetchLimit = 3

// Synthesizer turns text into an encoded audio clip (MP3 or WAV).
type Synthesizer interface {
	Speech(ctx context.Context, text string) ([]byte, error)
}

// Player plays an encoded clip and returns once playback has finished or ctx
// is cancelled.
type Player interface {
	Play(ctx context.Context, clip []byte) error
}

// NopPlayer discards clips. Used with --no-voice and in tests.
type NopPlayer struct{}

func (NopPlayer) Play(context.Context, []byte) error { return nil }

type Speaker struct {
	synth  Synthesizer
	player Player

	mu    sync.Mutex
	clips map[string][]byte
	sf    singleflight.Group // one /tts request per text
}

func NewSpeaker(synth Synthesizer, player Player) *Speaker {
	if player == nil {
		player = NopPlayer{}
	}
	return &Speaker{synth: synth, player: player, clips: make(map[string][]byte)}
}

// Say speaks text and blocks until playback ends. A backend that returns no
// audio is treated as silence, not an error.
func (s *Speaker) Say(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" || s.synth == nil {
		return nil
	}
	clip, err := s.clip(ctx, text)
	if errors.Is(err, backend.ErrNoAudio) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("speech: synthesize: %w", err)
	}
	if err := s.player.Play(ctx, clip); err != nil {
		return fmt.Errorf("speech: play: %w", err)
	}
	return nil
}

// Prefetch fetches clips for texts concurrently. Failures are logged and the
// clip is fetched again on demand by Say.
func (s *Speaker) Prefetch(ctx context.Context, texts []string) {
	if s.synth == nil {
		return
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchLimit)
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" || s.cached(text) {
			continue
		}
		g.Go(func() error {
			if _, err := s.clip(ctx, text); err != nil && !errors.Is(err, backend.ErrNoAudio) {
				log.Warnf("tts prefetch failed: %v", err)
			}
			return nil
		})
	}
	g.Wait()
}

// Cached reports how many clips are held.
func (s *Speaker) Cached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clips)
}

func (s *Speaker) cached(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.clips[text]
	return ok
}

func (s *Speaker) clip(ctx context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	clip, ok := s.clips[text]
	s.mu.Unlock()
	if ok {
		return clip, nil
	}

	v, err, _ := s.sf.Do(text, func() (any, error) {
		clip, err := s.synth.Speech(ctx, text)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.clips[text] = clip
		s.mu.Unlock()
		return clip, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
