package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/djdv/go-pagevirt"
	"github.com/djdv/go-pagevirt/internal/linefile"
	"github.com/stretchr/testify/require"
)

func newTestREPL(tb testing.TB, lines, window int) (*REPL, *bytes.Buffer) {
	tb.Helper()
	var text strings.Builder
	for i := range lines {
		fmt.Fprintf(&text, "line %d\n", i)
	}
	reader := strings.NewReader(text.String())
	index, err := linefile.New(reader, reader.Size(), 8)
	require.NoError(tb, err)
	cfg := defaultConfig()
	cfg.PageSize = 10
	cfg.Policy = policyClockPro
	collection, closeCollection, err := openCollection(cfg, index,
		slog.New(slog.DiscardHandler), pagevirt.NoopObserver{})
	require.NoError(tb, err)
	tb.Cleanup(func() { require.NoError(tb, closeCollection()) })
	view, err := pagevirt.NewSlidingWindow(tb.Context(), collection, 0, window)
	require.NoError(tb, err)
	tb.Cleanup(func() { view.Close() })
	var out bytes.Buffer
	return newREPL(&out, collection, view, ""), &out
}

func TestREPL(t *testing.T) {
	t.Parallel()
	t.Run("navigation", replNavigation)
	t.Run("errors", replErrors)
}

func replNavigation(t *testing.T) {
	t.Parallel()
	repl, out := newTestREPL(t, 100, 3)
	require.NoError(t, repl.execute("next", []string{"5"}))
	require.Equal(t, 5, repl.window.Offset())
	require.Contains(t, out.String(), "line 7")

	out.Reset()
	require.NoError(t, repl.execute("end", nil))
	require.Equal(t, 97, repl.window.Offset())
	require.Contains(t, out.String(), "line 99")

	require.NoError(t, repl.execute("grow", []string{"2"}))
	require.Equal(t, 5, repl.window.Size())
	require.Equal(t, 95, repl.window.Offset(), "growing at the end moves the window back")

	require.NoError(t, repl.execute("jump", []string{"-4"}))
	require.Equal(t, 0, repl.window.Offset())
	require.NoError(t, repl.execute("prefetch", nil))

	out.Reset()
	require.NoError(t, repl.execute("stats", nil))
	require.Contains(t, out.String(), "lines:    100")
	require.ErrorIs(t, repl.execute("q", nil), errQuit)
}

func replErrors(t *testing.T) {
	t.Parallel()
	repl, _ := newTestREPL(t, 10, 2)
	require.Error(t, repl.execute("jump", nil))
	require.Error(t, repl.execute("jump", []string{"x"}))
	require.Error(t, repl.execute("next", []string{"0"}))
	require.Error(t, repl.execute("sideways", nil))
	require.Equal(t, []string{"show", "shrink", "stats"}, completer("s"))
}
