package logger

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const (
	bold      = "\x1b[1m"
	reset     = "\x1b[0m"
	eraseDown = "\x1b[0J" // erase from cursor to end of screen
	cursorUp  = "\x1b[%dA"

	// Footer lines longer than this are truncated so the redraw math
	// never has to account for terminal wraparound.
	maxFooterWidth = 120

	taskQueueSize = 1024
)

// Logger renders a scrolling message log plus a pinned, redrawable footer
// on a single terminal stream. Every Log/SetFooter call is submitted to one
// worker goroutine that owns the cursor, so concurrent producers get a total
// ordering of writes without any caller-side locking.
type Logger struct {
	out   io.Writer
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}

	closeOnce sync.Once

	// footer is only read and replaced from inside the worker goroutine.
	footer []string
}

// New creates a Logger writing to out and starts its worker goroutine.
func New(out io.Writer) *Logger {
	l := &Logger{
		out:   out,
		tasks: make(chan func(), taskQueueSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Logger) run() {
	defer close(l.done)
	for {
		select {
		case task := <-l.tasks:
			task()
		case <-l.quit:
			// Drain whatever was submitted before shutdown, then stop.
			for {
				select {
				case task := <-l.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) submit(task func()) {
	select {
	case <-l.quit:
		return
	default:
	}
	select {
	case l.tasks <- task:
	case <-l.quit:
	}
}

// Log prints a message above the footer. If a footer is displayed the cursor
// moves up to where the footer starts, everything below is erased, the
// message is printed there and the footer reprinted beneath it.
func (l *Logger) Log(message string) {
	l.submit(func() {
		l.eraseFooter()
		fmt.Fprintln(l.out, message)
		l.printFooter()
	})
}

// Logf is Log with fmt formatting.
func (l *Logger) Logf(format string, args ...any) {
	l.Log(fmt.Sprintf(format, args...))
}

// SetFooter replaces the footer. Setting a footer textually identical to the
// current one performs no write at all, so repeated progress updates with
// unchanged content do not flicker. An empty slice clears the footer.
func (l *Logger) SetFooter(lines []string) {
	truncated := make([]string, len(lines))
	for i, line := range lines {
		truncated[i] = truncate(line, maxFooterWidth)
	}
	l.submit(func() {
		if slices.Equal(l.footer, truncated) {
			return
		}
		l.eraseFooter()
		l.footer = truncated
		l.printFooter()
	})
}

// Shutdown waits for all submitted writes to drain, up to timeout. If the
// bound is exceeded the worker is abandoned rather than hanging the process.
func (l *Logger) Shutdown(timeout time.Duration) {
	l.closeOnce.Do(func() { close(l.quit) })
	select {
	case <-l.done:
	case <-time.After(timeout):
	}
}

// eraseFooter and printFooter run only on the worker goroutine. Write errors
// are swallowed: progress reporting is best-effort and must never abort a
// build.
func (l *Logger) eraseFooter() {
	if len(l.footer) == 0 {
		return
	}
	fmt.Fprintf(l.out, cursorUp, len(l.footer))
	fmt.Fprint(l.out, eraseDown)
}

func (l *Logger) printFooter() {
	for _, line := range l.footer {
		fmt.Fprintln(l.out, bold+line+reset)
	}
}

// Write lets the Logger serve as an io.Writer sink for log handlers. Each
// write is one message; a trailing newline is stripped.
func (l *Logger) Write(p []byte) (int, error) {
	l.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func truncate(line string, width int) string {
	runes := []rune(line)
	if len(runes) <= width {
		return line
	}
	return string(runes[:width-3]) + "..."
}

// IsTTY reports whether w is an interactive terminal. Footer rendering is
// only worth the ANSI traffic when it is.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
