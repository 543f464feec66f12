package overlay

import (
	"context"
	"io"

	"github.com/coder/websocket"
)

type Socket interface {
	ReadText(ctx context.Context) (string, error)
	WriteText(ctx context.Context, text string) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

type RealDialer struct{}

func (RealDialer) Dial(ctx context.Context, url string) (Socket, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &realSocket{conn: conn}, nil
}

type realSocket struct {
	conn *websocket.Conn
}

func (s *realSocket) ReadText(ctx context.Context) (string, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *realSocket) WriteText(ctx context.Context, text string) error {
	return s.conn.Write(ctx, websocket.MessageText, []byte(text))
}

func (s *realSocket) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

// FakeSocket is an in-memory Socket for tests and for driving the client
// without a server.
type FakeSocket struct {
	readCh  chan string
	writes  chan string
	closeCh chan struct{}
}

func NewFakeSocket() *FakeSocket {
	return &FakeSocket{
		readCh:  make(chan string, 8),
		writes:  make(chan string, 8),
		closeCh: make(chan struct{}),
	}
}

func (f *FakeSocket) EmitText(text string) {
	f.readCh <- text
}

func (f *FakeSocket) SentTexts() <-chan string {
	return f.writes
}

func (f *FakeSocket) ReadText(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-f.closeCh:
		return "", io.EOF
	case text := <-f.readCh:
		return text, nil
	}
}

func (f *FakeSocket) WriteText(_ context.Context, text string) error {
	select {
	case f.writes <- text:
	default:
	}
	return nil
}

func (f *FakeSocket) Close() error {
	select {
	case <-f.closeCh:
	default:
		close(f.closeCh)
	}
	return nil
}
