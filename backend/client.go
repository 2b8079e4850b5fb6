// Package backend is the REST client for the insulink backend: question
// bank, speech synthesis, transcription and answer scoring.
package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"insulink/encoder"
	"insulink/log"
	"insulink/nettrace"
	"insulink/questionnaire"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Code, body)
}

// ErrNoAudio is returned by Speech when the backend answered without audio.
var ErrNoAudio = errors.New("no audio returned")

type Client struct {
	base    *url.URL
	http    *nettrace.Client
	timeout time.Duration
}

func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend url %q: scheme must be http or https", baseURL)
	}
	return &Client{base: u, http: nettrace.New(u.String()), timeout: timeout}, nil
}

// WithHTTPClient swaps the transport, used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = nettrace.Wrap(hc, c.base.String())
	return c
}

func (c *Client) BaseURL() string { return c.base.String() }

// Warm pre-opens a connection to the backend.
func (c *Client) Warm() { c.http.Warm() }

func (c *Client) endpoint(path string) string {
	return c.base.JoinPath(path).String()
}

func (c *Client) do(ctx context.Context, op string, req *http.Request) (*nettrace.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !resp.OK() {
		return resp, &StatusError{Op: op, Code: resp.StatusCode, Body: string(resp.Body)}
	}
	log.Debugf("%s %d in %dms", op, resp.StatusCode, resp.Metrics.Total.Milliseconds())
	return resp, nil
}

// Questions fetches the bank from GET /questions. The response shape is
// {"questions": {"med": [...], "food": [...], "sleep": [...]}}.
func (c *Client) Questions(ctx context.Context) (questionnaire.Bank, error) {
	req, err := http.NewRequest(http.MethodGet, c.endpoint("/questions"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, "questions", req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", questionnaire.ErrQuestionBankUnavailable, err)
	}

	var payload struct {
		Questions questionnaire.Bank `json:"questions"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding questions: %w", questionnaire.ErrQuestionBankUnavailable, err)
	}
	if err := payload.Questions.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", questionnaire.ErrQuestionBankUnavailable, err)
	}
	return payload.Questions, nil
}

// Speech synthesizes text via POST /tts (form field "text"). The backend
// either streams audio bytes or returns {"audioUrl": ...} / {"url": ...}
// pointing at a data: URL or a fetchable location.
func (c *Client) Speech(ctx context.Context, text string) ([]byte, error) {
	form := url.Values{"text": {text}}
	req, err := http.NewRequest(http.MethodPost, c.endpoint("/tts"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.do(ctx, "tts", req)
	if err != nil {
		return nil, err
	}

	ct := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "audio/") || ct == "application/octet-stream" {
		if len(resp.Body) == 0 {
			return nil, ErrNoAudio
		}
		return resp.Body, nil
	}

	var payload struct {
		AudioURL string `json:"audioUrl"`
		URL      string `json:"url"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("tts: decoding response: %w", err)
	}
	loc := payload.AudioURL
	if loc == "" {
		loc = payload.URL
	}
	if loc == "" {
		return nil, ErrNoAudio
	}
	return c.fetchAudio(ctx, loc)
}

func (c *Client) fetchAudio(ctx context.Context, loc string) ([]byte, error) {
	if strings.HasPrefix(loc, "data:") {
		return decodeDataURL(loc)
	}
	ref, err := url.Parse(loc)
	if err != nil {
		return nil, fmt.Errorf("tts: bad audio url: %w", err)
	}
	req, err := http.NewRequest(http.MethodGet, c.base.ResolveReference(ref).String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, "tts audio", req)
	if err != nil {
		return nil, err
	}
	if len(resp.Body) == 0 {
		return nil, ErrNoAudio
	}
	return resp.Body, nil
}

func decodeDataURL(loc string) ([]byte, error) {
	meta, data, ok := strings.Cut(strings.TrimPrefix(loc, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("tts: malformed data url")
	}
	if !strings.HasSuffix(meta, ";base64") {
		s, err := url.PathUnescape(data)
		if err != nil {
			return nil, fmt.Errorf("tts: malformed data url: %w", err)
		}
		return []byte(s), nil
	}
	audio, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("tts: decoding base64 audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrNoAudio
	}
	return audio, nil
}

// TranscribeResult is the text of one upload plus its network timings.
type TranscribeResult struct {
	Text    string
	Metrics *nettrace.Metrics
}

// Transcribe uploads an encoded recording to POST /transcribe as multipart
// field "file" and returns {"text": ...}.
func (c *Client) Transcribe(ctx context.Context, audio []byte, format encoder.Format) (*TranscribeResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", format.Filename())
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, bytes.NewReader(audio)); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint("/transcribe"), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := c.do(ctx, "transcribe", req)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("transcribe: decoding response: %w", err)
	}
	return &TranscribeResult{Text: strings.TrimSpace(payload.Text), Metrics: resp.Metrics}, nil
}

// Analyze posts {"answers": {"med": [...], "food": [...], "sleep": [...]}}
// to /analyze and decodes the scores.
func (c *Client) Analyze(ctx context.Context, answers questionnaire.AnswerSet) (questionnaire.Result, error) {
	payload, err := json.Marshal(struct {
		Answers questionnaire.AnswerSet `json:"answers"`
	}{answers})
	if err != nil {
		return questionnaire.Result{}, err
	}
	req, err := http.NewRequest(http.MethodPost, c.endpoint("/analyze"), bytes.NewReader(payload))
	if err != nil {
		return questionnaire.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(ctx, "analyze", req)
	if err != nil {
		return questionnaire.Result{}, err
	}

	var res questionnaire.Result
	if err := json.Unmarshal(resp.Body, &res); err != nil {
		return questionnaire.Result{}, fmt.Errorf("analyze: decoding response: %w", err)
	}
	if len(res.Scores) == 0 {
		return questionnaire.Result{}, fmt.Errorf("analyze: response has no scores")
	}
	return res, nil
}
