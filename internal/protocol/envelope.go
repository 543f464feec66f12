package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Client-to-server commands.
const (
	CmdScreenshot  = "screenshot"
	CmdAIQuery     = "ai_query"
	CmdAIQueryText = "ai_query_text"
	CmdPing        = "ping"
)

// Server-to-client response types.
const (
	TypeScreenshot = "screenshot"
	TypeAIResponse = "ai_response"
	TypeError      = "error"
	TypePong       = "pong"
)

var ErrInvalidJSON = errors.New("invalid JSON format")

// Request is the client-to-server envelope. Command is the single
// discriminator; the remaining fields are command-specific.
type Request struct {
	Command   string `json:"command"`
	Question  string `json:"question,omitempty"`
	ImageData string `json:"image_data,omitempty"`
}

// Response is the server-to-client envelope, tagged by Type.
type Response struct {
	Type      string `json:"type"`
	Data      string `json:"data,omitempty"`
	Answer    string `json:"answer,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// DecodeRequest parses a raw inbound message. Malformed JSON yields
// ErrInvalidJSON; a missing command discriminator is an error too, so the
// router can tell "garbage" apart from "unknown command".
func DecodeRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	req.Command = strings.TrimSpace(req.Command)
	return req, nil
}

func DecodeResponse(raw []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return resp, nil
}

func NewScreenshot(imageB64 string) Response {
	return Response{Type: TypeScreenshot, Data: imageB64, Timestamp: now()}
}

func NewAIResponse(answer string) Response {
	return Response{Type: TypeAIResponse, Answer: answer, Timestamp: now()}
}

func NewError(message string) Response {
	return Response{Type: TypeError, Message: message, Timestamp: now()}
}

func NewPong() Response {
	return Response{Type: TypePong, Timestamp: now()}
}

func (r Response) Encode() []byte {
	b, _ := json.Marshal(r)
	return b
}

func (r Request) Encode() []byte {
	b, _ := json.Marshal(r)
	return b
}

var nowFunc = time.Now

func now() string {
	return nowFunc().Format(time.RFC3339)
}
