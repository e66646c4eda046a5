package client

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/fatih/color"
)

var (
	infoLabel    = color.New(color.FgHiCyan).SprintFunc()
	warningLabel = color.New(color.FgHiYellow, color.Bold).SprintFunc()
	errorLabel   = color.New(color.FgHiRed, color.Bold).SprintFunc()
)

// ConsoleNotifier prints user facing notifications as coloured lines.
type ConsoleNotifier struct {
	out io.Writer
	mu  sync.Mutex
}

func NewConsoleNotifier(out io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{out: out}
}

func (n *ConsoleNotifier) Info(msg string) {
	slog.Debug("notify", "level", "info", "msg", msg)
	n.print(infoLabel("INFO"), msg)
}

func (n *ConsoleNotifier) Warning(msg string) {
	slog.Debug("notify", "level", "warning", "msg", msg)
	n.print(warningLabel("WARN"), msg)
}

func (n *ConsoleNotifier) Error(msg string) {
	slog.Debug("notify", "level", "error", "msg", msg)
	n.print(errorLabel("ERROR"), msg)
}

func (n *ConsoleNotifier) print(label, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.out, "%s %s\n", label, msg)
}

// LogNotifier routes notifications to the default logger. The daemon uses it
// since nobody watches its stdout.
type LogNotifier struct{}

func (LogNotifier) Info(msg string)    { slog.Info("notify", "msg", msg) }
func (LogNotifier) Warning(msg string) { slog.Warn("notify", "msg", msg) }
func (LogNotifier) Error(msg string)   { slog.Error("notify", "msg", msg) }
