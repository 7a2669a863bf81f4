package logger

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is safe for the worker goroutine to write while tests inspect
// it after Shutdown.
type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestLogReprintsFooter(t *testing.T) {
	out := &syncBuffer{}
	l := New(out)
	l.SetFooter([]string{"progress: 50%"})
	l.Log("hello")
	l.Shutdown(time.Second)

	got := out.String()
	assert.Contains(t, got, "hello\n")
	// The footer is erased (cursor up one line) before the message and
	// reprinted, bold, after it.
	assert.Contains(t, got, "\x1b[1A")
	assert.Contains(t, got, bold+"progress: 50%"+reset)
	assert.Less(t, strings.Index(got, "hello"), strings.LastIndex(got, "progress: 50%"))
}

func TestSetFooterIdenticalIsNoop(t *testing.T) {
	out := &syncBuffer{}
	l := New(out)
	l.SetFooter([]string{"step 1/3"})
	l.SetFooter([]string{"step 1/3"})
	l.Shutdown(time.Second)

	// One redraw, not two.
	assert.Equal(t, 1, strings.Count(out.String(), "step 1/3"))
}

func TestSetFooterReplacesPrevious(t *testing.T) {
	out := &syncBuffer{}
	l := New(out)
	l.SetFooter([]string{"step 1/3"})
	l.SetFooter([]string{"step 2/3"})
	l.Shutdown(time.Second)

	got := out.String()
	assert.Contains(t, got, "step 1/3")
	assert.Contains(t, got, "step 2/3")
	assert.Contains(t, got, fmt.Sprintf(cursorUp, 1))
}

func TestFooterTruncation(t *testing.T) {
	out := &syncBuffer{}
	l := New(out)
	long := strings.Repeat("x", maxFooterWidth+40)
	l.SetFooter([]string{long})
	l.Shutdown(time.Second)

	got := out.String()
	assert.NotContains(t, got, long)
	assert.Contains(t, got, strings.Repeat("x", maxFooterWidth-3)+"...")
}

func TestSingleProducerOrderPreserved(t *testing.T) {
	out := &syncBuffer{}
	l := New(out)
	for i := 0; i < 50; i++ {
		l.Logf("message-%03d", i)
	}
	l.Shutdown(time.Second)

	got := out.String()
	last := -1
	for i := 0; i < 50; i++ {
		idx := strings.Index(got, fmt.Sprintf("message-%03d", i))
		require.Greater(t, idx, last, "message %d out of order", i)
		last = idx
	}
}

func TestConcurrentProducersAllDelivered(t *testing.T) {
	out := &syncBuffer{}
	l := New(out)

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				l.Logf("producer-%d-msg-%d", p, i)
				if i%5 == 0 {
					l.SetFooter([]string{fmt.Sprintf("producer %d at %d", p, i)})
				}
			}
		}(p)
	}
	wg.Wait()
	l.Shutdown(time.Second)

	got := out.String()
	for p := 0; p < 8; p++ {
		for i := 0; i < 20; i++ {
			assert.Contains(t, got, fmt.Sprintf("producer-%d-msg-%d", p, i))
		}
	}
}

func TestWriteFailuresAreSwallowed(t *testing.T) {
	l := New(failingWriter{})
	assert.NotPanics(t, func() {
		l.SetFooter([]string{"footer"})
		l.Log("message")
		l.Shutdown(time.Second)
	})
}

func TestSubmitAfterShutdownIsDropped(t *testing.T) {
	out := &syncBuffer{}
	l := New(out)
	l.Shutdown(time.Second)
	assert.NotPanics(t, func() { l.Log("late") })
	assert.NotContains(t, out.String(), "late")
}

func TestLoggerAsWriter(t *testing.T) {
	out := &syncBuffer{}
	l := New(out)
	n, err := l.Write([]byte("from a handler\n"))
	require.NoError(t, err)
	assert.Equal(t, len("from a handler\n"), n)
	l.Shutdown(time.Second)
	assert.Contains(t, out.String(), "from a handler\n")
}
