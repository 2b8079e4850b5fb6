package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"

	"insulink/encoder"
	"insulink/nettrace"
)

const groqAPIURL = "https://api.groq.com/openai/v1/audio/transcriptions"

type Groq struct {
	baseTranscriber
	apiKey string
}

func NewGroq(apiKey string) *Groq {
	return &Groq{
		baseTranscriber: baseTranscriber{
			client: nettrace.New(groqAPIURL),
			apiURL: groqAPIURL,
		},
		apiKey: apiKey,
	}
}

func (g *Groq) Name() string { return "groq" }

func (g *Groq) NewSession(_ context.Context, cfg SessionConfig) (Session, error) {
	if cfg.Stream {
		return nil, fmt.Errorf("groq does not support streaming transcription")
	}
	go g.client.Warm()
	g.setLanguage(cfg.Language)
	return newBatchSession(cfg, g.transcribe)
}

type groqResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments"`
}

// noSpeechCutoff drops Whisper output for segments it believes are silence;
// Whisper tends to hallucinate short phrases on empty audio.
const noSpeechCutoff = 0.8

func (g *Groq) transcribe(ctx context.Context, audio []byte, format encoder.Format) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", format.Filename())
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, err
	}
	writer.WriteField("model", "whisper-large-v3-turbo")
	writer.WriteField("response_format", "verbose_json")
	if g.lang != "" {
		writer.WriteField("language", g.lang)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("groq API error %d: %s", resp.StatusCode, string(resp.Body))
	}

	var gResp groqResponse
	if err := json.Unmarshal(resp.Body, &gResp); err != nil {
		return nil, fmt.Errorf("groq response parse error: %w", err)
	}

	text := gResp.Text
	if len(gResp.Segments) > 0 {
		silent := true
		for _, seg := range gResp.Segments {
			if seg.NoSpeechProb < noSpeechCutoff {
				silent = false
				break
			}
		}
		if silent {
			text = ""
		}
	}

	remaining := nettrace.FirstHeader(resp.Header, "x-ratelimit-remaining-requests")
	limit := nettrace.FirstHeader(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:      text,
		Metrics:   resp.Metrics,
		RateLimit: remaining + "/" + limit,
		Duration:  gResp.Duration,
	}, nil
}
