package utils

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"time"
)

// LogInterceptor is an io.Writer that prefixes every complete line with a
// sequence number and a timestamp before handing it to target. Partial lines
// are held until their newline arrives or Close is called.
type LogInterceptor struct {
	target  io.Writer
	pending bytes.Buffer
	seq     uint64
	now     func() time.Time
	mu      sync.Mutex
}

func NewLogInterceptor(target io.Writer) *LogInterceptor {
	return &LogInterceptor{target: target, now: time.Now}
}

func (i *LogInterceptor) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.pending.Write(p)
	for {
		idx := bytes.IndexByte(i.pending.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSuffix(i.pending.Next(idx+1), []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))
		if err := i.writeLine(line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Close flushes a trailing partial line
func (i *LogInterceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.pending.Len() == 0 {
		return nil
	}
	line := append([]byte(nil), i.pending.Bytes()...)
	i.pending.Reset()
	return i.writeLine(line)
}

func (i *LogInterceptor) writeLine(line []byte) error {
	i.seq++
	var buf bytes.Buffer
	buf.WriteString(slog.Uint64("line", i.seq).String())
	buf.WriteByte(' ')
	buf.WriteString(slog.String("time", i.now().Format(time.RFC3339)).String())
	buf.WriteByte(' ')
	buf.Write(line)
	buf.WriteByte('\n')
	_, err := i.target.Write(buf.Bytes())
	return err
}
