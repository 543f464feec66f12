package overlay

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/faketut/SnapAI/internal/protocol"
)

// Client keeps one connection to the server alive forever. Connection loss
// is recovered with doubling backoff; only Stop (or ctx cancel) ends the
// retry loop. Process restarts are budgeted elsewhere, a network blip never
// needs operator intervention.
type Client struct {
	dialer       Dialer
	url          string
	onMessage    func(string)
	logger       *slog.Logger
	initialDelay time.Duration
	maxDelay     time.Duration
	promptPrefix string

	mu      sync.Mutex
	sock    Socket
	stopped bool
	stopCh  chan struct{}
}

type ClientOptions struct {
	URL          string
	OnMessage    func(string)
	Logger       *slog.Logger
	InitialDelay time.Duration
	MaxDelay     time.Duration
	PromptPrefix string
}

func NewClient(dialer Dialer, opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	initial := opts.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	max := opts.MaxDelay
	if max < initial {
		max = 30 * time.Second
	}
	return &Client{
		dialer:       dialer,
		url:          opts.URL,
		onMessage:    opts.OnMessage,
		logger:       logger,
		initialDelay: initial,
		maxDelay:     max,
		promptPrefix: opts.PromptPrefix,
		stopCh:       make(chan struct{}),
	}
}

// Run connects and listens until Stop or ctx cancel. Every received message
// is translated to display text through the registered callback, so the
// operator always sees the channel's latest state.
func (c *Client) Run(ctx context.Context) error {
	delay := c.initialDelay
	for {
		if c.isStopped() || ctx.Err() != nil {
			return nil
		}

		sock, err := c.dialer.Dial(ctx, c.url)
		if err != nil {
			if c.isStopped() || ctx.Err() != nil {
				return nil
			}
			c.notify(fmt.Sprintf("Connection lost. Retrying in %d seconds...", int(delay.Seconds())))
			if !c.sleep(ctx, delay) {
				return nil
			}
			delay = c.nextDelay(delay)
			continue
		}

		c.setSocket(sock)
		// Stop may have landed while the dial was in flight, before there
		// was a socket to close. Re-check so the fresh socket is not leaked.
		if c.isStopped() || ctx.Err() != nil {
			_ = sock.Close()
			c.setSocket(nil)
			return nil
		}
		delay = c.initialDelay
		c.notify("Successfully connected to server")
		c.logger.Info("connected", "url", c.url)

		c.listen(ctx, sock)
		c.setSocket(nil)

		if c.isStopped() || ctx.Err() != nil {
			return nil
		}
		c.notify(fmt.Sprintf("Connection lost. Retrying in %d seconds...", int(delay.Seconds())))
		if !c.sleep(ctx, delay) {
			return nil
		}
		delay = c.nextDelay(delay)
	}
}

// listen consumes messages until the connection dies. A single undecodable
// message is reported and skipped, never fatal to the connection.
func (c *Client) listen(ctx context.Context, sock Socket) {
	for {
		text, err := sock.ReadText(ctx)
		if err != nil {
			c.logger.Debug("receive loop ended", "err", err)
			return
		}
		resp, err := protocol.DecodeResponse([]byte(text))
		if err != nil {
			c.notify("Received invalid message format")
			continue
		}
		switch resp.Type {
		case protocol.TypeAIResponse:
			answer := resp.Answer
			if answer == "" {
				answer = "No answer"
			}
			c.notify(answer)
		case protocol.TypeError:
			message := resp.Message
			if message == "" {
				message = "Unknown error"
			}
			c.notify("Server error: " + message)
		default:
			c.notify("Received invalid message format")
		}
	}
}

// Stop disables further reconnect attempts and closes the live connection.
// Safe to call more than once.
func (c *Client) Stop() {
	c.mu.Lock()
	sock := c.sock
	already := c.stopped
	c.stopped = true
	c.mu.Unlock()

	if !already {
		close(c.stopCh)
	}
	if sock != nil {
		_ = sock.Close()
	}
}

// Send is best-effort: while disconnected the envelope is dropped, not
// queued.
func (c *Client) Send(ctx context.Context, req protocol.Request) {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
		c.logger.Debug("dropping send while disconnected", "command", req.Command)
		return
	}
	if err := sock.WriteText(ctx, string(req.Encode())); err != nil {
		c.logger.Debug("send failed", "command", req.Command, "err", err)
	}
}

// AskText submits a text-only question, prefixed the way the hotkey flow
// prefixes clipboard content.
func (c *Client) AskText(ctx context.Context, question string) {
	c.Send(ctx, protocol.Request{
		Command:  protocol.CmdAIQueryText,
		Question: strings.TrimSpace(c.promptPrefix + question),
	})
}

// AskImage submits a question about a PNG image.
func (c *Client) AskImage(ctx context.Context, question string, imagePNG []byte) {
	c.Send(ctx, protocol.Request{
		Command:   protocol.CmdAIQuery,
		Question:  c.promptPrefix + question,
		ImageData: base64.StdEncoding.EncodeToString(imagePNG),
	})
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock != nil
}

func (c *Client) setSocket(sock Socket) {
	c.mu.Lock()
	c.sock = sock
	c.mu.Unlock()
}

func (c *Client) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Client) notify(text string) {
	if c.onMessage != nil {
		c.onMessage(text)
	}
}

func (c *Client) nextDelay(delay time.Duration) time.Duration {
	delay *= 2
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

// sleep waits out the backoff delay, returning false when the wait was cut
// short by Stop or ctx cancel.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
