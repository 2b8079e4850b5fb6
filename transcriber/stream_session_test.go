package transcriber

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// scriptedStream replays recognition messages: each Send releases the next
// scripted update, CloseSend emits the finalize acknowledgment.
type scriptedStream struct {
	mu      sync.Mutex
	script  []streamUpdate
	out     chan streamUpdate
	sent    int
	sendErr error
	recvErr error
	closed  chan struct{}
	once    sync.Once
}

func newScriptedStream(script ...streamUpdate) *scriptedStream {
	return &scriptedStream{script: script, out: make(chan streamUpdate, 64), closed: make(chan struct{})}
}

func (s *scriptedStream) Send(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent += len(pcm)
	if len(s.script) > 0 {
		s.out <- s.script[0]
		s.script = s.script[1:]
	}
	return nil
}

func (s *scriptedStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.script {
		s.out <- u
	}
	s.script = nil
	s.out <- streamUpdate{FromFinalize: true}
	return nil
}

func (s *scriptedStream) Recv() (streamUpdate, error) {
	if s.recvErr != nil {
		return streamUpdate{}, s.recvErr
	}
	select {
	case u := <-s.out:
		return u, nil
	case <-s.closed:
		return streamUpdate{}, errors.New("closed")
	}
}

func (s *scriptedStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func TestStreamSessionInterimAndFinal(t *testing.T) {
	raw := newScriptedStream(
		streamUpdate{Transcript: "I took"},
		streamUpdate{Transcript: "I took my pills", IsFinal: true},
		streamUpdate{Transcript: "this mor"},
		streamUpdate{Transcript: "this morning", SpeechFinal: true},
	)
	ss := newStreamSession(func() (rawStreamSession, error) { return raw, nil })

	var mu sync.Mutex
	var seen []Update
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range ss.Updates() {
			mu.Lock()
			seen = append(seen, u)
			mu.Unlock()
		}
	}()

	<-ss.connected
	for range 4 {
		ss.Feed(make([]byte, streamChunkBytes))
	}
	res, err := ss.Close(context.Background())
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	<-done

	if res.Text != "I took my pills this morning" {
		t.Fatalf("text = %q", res.Text)
	}
	if res.RecognitionErr != nil {
		t.Fatalf("unexpected recognition error: %v", res.RecognitionErr)
	}
	if res.Stream == nil || res.Stream.SentChunks != 4 {
		t.Fatalf("stats = %+v", res.Stream)
	}

	mu.Lock()
	defer mu.Unlock()
	var sawInterim bool
	prevFinal := ""
	for _, u := range seen {
		if u.Interim == "I took" || u.Interim == "this mor" {
			sawInterim = true
		}
		if !strings.HasPrefix(u.Final, prevFinal) {
			t.Fatalf("final text shrank: %q -> %q", prevFinal, u.Final)
		}
		prevFinal = u.Final
	}
	if !sawInterim {
		t.Errorf("no interim update in %+v", seen)
	}
}

func TestStreamSessionSwallowsRecognitionError(t *testing.T) {
	raw := newScriptedStream(streamUpdate{Transcript: "yes", IsFinal: true})
	ss := newStreamSession(func() (rawStreamSession, error) { return raw, nil })
	go func() {
		for range ss.Updates() {
		}
	}()
	<-ss.connected
	ss.Feed(make([]byte, streamChunkBytes))
	time.Sleep(20 * time.Millisecond)
	raw.mu.Lock()
	raw.sendErr = errors.New("socket reset")
	raw.mu.Unlock()
	ss.Feed(make([]byte, streamChunkBytes))

	res, err := ss.Close(context.Background())
	if err != nil {
		t.Fatalf("stream errors must not fail Close: %v", err)
	}
	if res.RecognitionErr == nil {
		t.Error("expected RecognitionErr")
	}
	if res.Text != "yes" {
		t.Errorf("text gathered before the error was lost: %q", res.Text)
	}
}

func TestStreamSessionDialFailure(t *testing.T) {
	ss := newStreamSession(func() (rawStreamSession, error) { return nil, errors.New("dns") })
	ss.Feed(make([]byte, streamChunkBytes*2))
	res, err := ss.Close(context.Background())
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !res.NoSpeech || res.RecognitionErr == nil {
		t.Fatalf("res = %+v", res)
	}
	if _, ok := <-ss.Updates(); ok {
		t.Fatal("updates should be closed")
	}
}

func TestDeepgramStreamOverWebsocket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("encoding") != "linear16" {
			t.Errorf("query = %v", r.URL.RawQuery)
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()
		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageText && strings.Contains(string(data), "Finalize") {
				c.Write(ctx, websocket.MessageText, []byte(`{"type":"Metadata"}`))
				c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"from_finalize":true,"channel":{"alternatives":[{"transcript":"eight hours"}]}}`))
				continue
			}
			c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","channel":{"alternatives":[{"transcript":"eight"}]}}`))
		}
	}))
	defer srv.Close()

	d := NewDeepgram("key")
	d.streamURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	s, err := d.NewSession(context.Background(), SessionConfig{Stream: true})
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for range s.Updates() {
		}
	}()
	s.Feed(make([]byte, streamChunkBytes))
	res, err := s.Close(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "eight hours" {
		t.Fatalf("text = %q (recognition err %v)", res.Text, res.RecognitionErr)
	}
}
