package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"insulink/encoder"
	"insulink/nettrace"
)

const (
	deepgramAPIURL    = "https://api.deepgram.com/v1/listen"
	deepgramStreamURL = "wss://api.deepgram.com/v1/listen"
	deepgramModel     = "nova-3"
)

type Deepgram struct {
	baseTranscriber
	apiKey    string
	streamURL string
}

func NewDeepgram(apiKey string) *Deepgram {
	return &Deepgram{
		baseTranscriber: baseTranscriber{
			client: nettrace.New("https://api.deepgram.com"),
			apiURL: deepgramAPIURL,
			lang:   "en",
		},
		apiKey:    apiKey,
		streamURL: deepgramStreamURL,
	}
}

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) NewSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	d.setLanguage(cfg.Language)
	if cfg.Stream {
		return newStreamSession(func() (rawStreamSession, error) {
			return d.startStream(ctx, streamSessionConfig{
				SampleRate: encoder.SampleRate,
				Channels:   encoder.Channels,
				Language:   d.lang,
				Model:      deepgramModel,
			})
		}), nil
	}
	go d.client.Warm()
	return newBatchSession(cfg, d.transcribe)
}

type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (d *Deepgram) transcribe(ctx context.Context, audio []byte, format encoder.Format) (*Result, error) {
	u, err := url.Parse(d.apiURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model", deepgramModel)
	q.Set("language", d.lang)
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audio))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", format.ContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("deepgram API error %d: %s", resp.StatusCode, string(resp.Body))
	}

	var dgResp deepgramResponse
	if err := json.Unmarshal(resp.Body, &dgResp); err != nil {
		return nil, fmt.Errorf("deepgram response parse error: %w", err)
	}

	var text string
	var confidence float64
	if len(dgResp.Results.Channels) > 0 && len(dgResp.Results.Channels[0].Alternatives) > 0 {
		alt := dgResp.Results.Channels[0].Alternatives[0]
		text = alt.Transcript
		confidence = alt.Confidence
	}

	remaining := nettrace.FirstHeader(resp.Header, "x-dg-ratelimit-remaining", "x-ratelimit-remaining", "ratelimit-remaining")
	limit := nettrace.FirstHeader(resp.Header, "x-dg-ratelimit-limit", "x-ratelimit-limit", "ratelimit-limit")

	return &Result{
		Text:       text,
		Metrics:    resp.Metrics,
		RateLimit:  remaining + "/" + limit,
		Confidence: confidence,
		Duration:   dgResp.Metadata.Duration,
	}, nil
}
