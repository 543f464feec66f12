package endpoint

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/faketut/SnapAI/internal/ai"
	"github.com/faketut/SnapAI/internal/protocol"
	"github.com/faketut/SnapAI/internal/screenshot"
)

// Router decodes inbound envelopes and dispatches them by command. Malformed
// JSON is answered with an error envelope; an unknown command gets no reply
// at all, which keeps older clients probing new commands harmless.
type Router struct {
	capturer screenshot.Capturer
	analyzer ai.Analyzer
	logger   *slog.Logger
}

func NewRouter(capturer screenshot.Capturer, analyzer ai.Analyzer, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{capturer: capturer, analyzer: analyzer, logger: logger}
}

// Dispatch handles one raw inbound message. The bool reports whether a
// response should be sent back on the same connection.
func (r *Router) Dispatch(ctx context.Context, raw []byte) (protocol.Response, bool) {
	req, err := protocol.DecodeRequest(raw)
	if err != nil {
		r.logger.Warn("rejecting malformed message", "err", err)
		return protocol.NewError("Invalid JSON format"), true
	}

	switch req.Command {
	case protocol.CmdScreenshot:
		return r.handleScreenshot(), true
	case protocol.CmdAIQuery:
		return r.handleAIQuery(ctx, req), true
	case protocol.CmdAIQueryText:
		return r.handleAIQueryText(ctx, req), true
	case protocol.CmdPing:
		return protocol.NewPong(), true
	default:
		r.logger.Debug("ignoring unknown command", "command", req.Command)
		return protocol.Response{}, false
	}
}

func (r *Router) handleScreenshot() protocol.Response {
	img, err := r.capturer.Capture()
	if err != nil {
		r.logger.Error("screenshot capture failed", "err", err)
		return protocol.NewError("Screenshot failed")
	}
	return protocol.NewScreenshot(base64.StdEncoding.EncodeToString(img))
}

func (r *Router) handleAIQuery(ctx context.Context, req protocol.Request) protocol.Response {
	if req.ImageData == "" {
		return protocol.NewError("No image provided")
	}
	img, err := base64.StdEncoding.DecodeString(req.ImageData)
	if err != nil {
		return protocol.NewError(fmt.Sprintf("Error processing message: %v", err))
	}
	answer, err := r.analyzer.Analyze(ctx, req.Question, img)
	if err != nil {
		r.logger.Error("image query failed", "err", err)
	}
	return protocol.NewAIResponse(ai.FormatAnswer(answer, err))
}

func (r *Router) handleAIQueryText(ctx context.Context, req protocol.Request) protocol.Response {
	answer, err := r.analyzer.Analyze(ctx, req.Question, nil)
	if err != nil {
		r.logger.Error("text query failed", "err", err)
	}
	return protocol.NewAIResponse(ai.FormatAnswer(answer, err))
}
