package remote

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

// FakeSocket is an in-memory Socket for tests.
type FakeSocket struct {
	readCh  chan string
	writeCh chan string
}

func NewFakeSocket() *FakeSocket {
	return &FakeSocket{
		readCh:  make(chan string, 8),
		writeCh: make(chan string, 8),
	}
}

// EmitText queues a message for the client to read.
func (f *FakeSocket) EmitText(text string) {
	f.readCh <- text
}

// Sent returns the channel of messages written by the client.
func (f *FakeSocket) Sent() <-chan string {
	return f.writeCh
}

func (f *FakeSocket) ReadText(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case text, ok := <-f.readCh:
		if !ok {
			return "", io.EOF
		}
		return text, nil
	}
}

func (f *FakeSocket) WriteText(ctx context.Context, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case f.writeCh <- text:
		return nil
	}
}

func (f *FakeSocket) Close() error {
	close(f.readCh)
	return nil
}
