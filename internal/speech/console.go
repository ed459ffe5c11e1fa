package speech

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ConsoleAdapter reads one line per utterance and prints spoken text. It
// stands in for a microphone and speaker in local sessions.
type ConsoleAdapter struct {
	in     io.Reader
	out    io.Writer
	prompt string

	once  sync.Once
	lines chan string
	eof   atomic.Bool

	mu   sync.Mutex
	stop chan struct{}
}

var _ Adapter = (*ConsoleAdapter)(nil)

// NewConsoleAdapter reads from in and writes to out.
func NewConsoleAdapter(in io.Reader, out io.Writer) *ConsoleAdapter {
	return &ConsoleAdapter{in: in, out: out, prompt: "> ", lines: make(chan string)}
}

func (c *ConsoleAdapter) readLines() {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}
	c.eof.Store(true)
	close(c.lines)
}

// StartListening implements Adapter. It returns io.EOF once input is exhausted.
func (c *ConsoleAdapter) StartListening(ctx context.Context) (<-chan Transcript, error) {
	c.once.Do(func() { go c.readLines() })
	if c.eof.Load() {
		return nil, io.EOF
	}

	stop := make(chan struct{})
	c.mu.Lock()
	c.stop = stop
	c.mu.Unlock()

	_, _ = fmt.Fprint(c.out, c.prompt)
	out := make(chan Transcript, 1)
	go func() {
		defer close(out)
		select {
		case line, ok := <-c.lines:
			if ok {
				out <- Transcript{Text: line, Final: true, At: time.Now()}
			}
		case <-stop:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// StopListening implements Adapter
func (c *ConsoleAdapter) StopListening() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

// Speak implements Adapter
func (c *ConsoleAdapter) Speak(_ context.Context, text, locale string) error {
	_, err := fmt.Fprintf(c.out, "[%s] %s\n", locale, text)
	return err
}
