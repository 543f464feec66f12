package endpoint

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/faketut/SnapAI/internal/ai"
	"github.com/faketut/SnapAI/internal/protocol"
)

type stubCapturer struct {
	png []byte
	err error
}

func (s *stubCapturer) Capture() ([]byte, error) { return s.png, s.err }

type stubAnalyzer struct {
	answer   string
	err      error
	question string
	image    []byte
}

func (s *stubAnalyzer) Analyze(_ context.Context, question string, image []byte) (string, error) {
	s.question = question
	s.image = image
	return s.answer, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(cap *stubCapturer, an *stubAnalyzer) *Router {
	if cap == nil {
		cap = &stubCapturer{}
	}
	if an == nil {
		an = &stubAnalyzer{}
	}
	return NewRouter(cap, an, quietLogger())
}

func TestDispatch_MalformedJSON(t *testing.T) {
	r := newTestRouter(nil, nil)
	resp, ok := r.Dispatch(context.Background(), []byte(`{broken`))
	if !ok {
		t.Fatalf("malformed JSON must produce a response")
	}
	if resp.Type != protocol.TypeError || resp.Message != "Invalid JSON format" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDispatch_UnknownCommandIsSilent(t *testing.T) {
	r := newTestRouter(nil, nil)
	if _, ok := r.Dispatch(context.Background(), []byte(`{"command":"reboot"}`)); ok {
		t.Fatalf("unknown command must not be answered")
	}
	if _, ok := r.Dispatch(context.Background(), []byte(`{"question":"no command"}`)); ok {
		t.Fatalf("missing command must not be answered")
	}
}

func TestDispatch_Ping(t *testing.T) {
	r := newTestRouter(nil, nil)
	resp, ok := r.Dispatch(context.Background(), []byte(`{"command":"ping"}`))
	if !ok || resp.Type != protocol.TypePong || resp.Timestamp == "" {
		t.Fatalf("unexpected pong: ok=%v resp=%+v", ok, resp)
	}
}

func TestDispatch_AIQueryText(t *testing.T) {
	an := &stubAnalyzer{answer: "4"}
	r := newTestRouter(nil, an)
	resp, ok := r.Dispatch(context.Background(), []byte(`{"command":"ai_query_text","question":"2+2="}`))
	if !ok || resp.Type != protocol.TypeAIResponse || resp.Answer != "4" {
		t.Fatalf("unexpected response: ok=%v resp=%+v", ok, resp)
	}
	if an.question != "2+2=" || an.image != nil {
		t.Fatalf("analyzer saw wrong inputs: question=%q image=%v", an.question, an.image)
	}
}

func TestDispatch_AIQueryWithoutImage(t *testing.T) {
	r := newTestRouter(nil, &stubAnalyzer{answer: "ignored"})
	resp, ok := r.Dispatch(context.Background(), []byte(`{"command":"ai_query","question":"what?"}`))
	if !ok || resp.Type != protocol.TypeError || resp.Message != "No image provided" {
		t.Fatalf("unexpected response: ok=%v resp=%+v", ok, resp)
	}
}

func TestDispatch_AIQueryWithImage(t *testing.T) {
	an := &stubAnalyzer{answer: "a cat"}
	r := newTestRouter(nil, an)
	img := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	resp, ok := r.Dispatch(context.Background(), []byte(`{"command":"ai_query","question":"what animal?","image_data":"`+img+`"}`))
	if !ok || resp.Type != protocol.TypeAIResponse || resp.Answer != "a cat" {
		t.Fatalf("unexpected response: ok=%v resp=%+v", ok, resp)
	}
	if string(an.image) != "png-bytes" {
		t.Fatalf("analyzer got wrong image: %q", an.image)
	}
}

func TestDispatch_AIQueryBadBase64(t *testing.T) {
	r := newTestRouter(nil, nil)
	resp, ok := r.Dispatch(context.Background(), []byte(`{"command":"ai_query","image_data":"%%%"}`))
	if !ok || resp.Type != protocol.TypeError {
		t.Fatalf("unexpected response: ok=%v resp=%+v", ok, resp)
	}
}

func TestDispatch_InferenceFailureEmbeddedInAnswer(t *testing.T) {
	r := newTestRouter(nil, &stubAnalyzer{err: errors.New("model offline")})
	resp, ok := r.Dispatch(context.Background(), []byte(`{"command":"ai_query_text","question":"hi"}`))
	if !ok || resp.Type != protocol.TypeAIResponse {
		t.Fatalf("inference failure must stay an ai_response: %+v", resp)
	}
	if resp.Answer != "Analysis failed: model offline" {
		t.Fatalf("unexpected answer text: %q", resp.Answer)
	}
}

func TestDispatch_NotConfiguredAnswer(t *testing.T) {
	r := newTestRouter(nil, &stubAnalyzer{err: ai.ErrNotConfigured})
	resp, _ := r.Dispatch(context.Background(), []byte(`{"command":"ai_query_text","question":"hi"}`))
	if resp.Answer != "Error: API key not configured" {
		t.Fatalf("unexpected answer text: %q", resp.Answer)
	}
}

func TestDispatch_Screenshot(t *testing.T) {
	r := newTestRouter(&stubCapturer{png: []byte("shot")}, nil)
	resp, ok := r.Dispatch(context.Background(), []byte(`{"command":"screenshot"}`))
	if !ok || resp.Type != protocol.TypeScreenshot {
		t.Fatalf("unexpected response: ok=%v resp=%+v", ok, resp)
	}
	if decoded, _ := base64.StdEncoding.DecodeString(resp.Data); string(decoded) != "shot" {
		t.Fatalf("unexpected payload: %q", resp.Data)
	}
}

func TestDispatch_ScreenshotFailure(t *testing.T) {
	r := newTestRouter(&stubCapturer{err: errors.New("no display")}, nil)
	resp, ok := r.Dispatch(context.Background(), []byte(`{"command":"screenshot"}`))
	if !ok || resp.Type != protocol.TypeError || resp.Message != "Screenshot failed" {
		t.Fatalf("unexpected response: ok=%v resp=%+v", ok, resp)
	}
}
