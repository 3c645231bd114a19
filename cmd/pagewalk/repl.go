package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/djdv/go-pagevirt"
	atomicfile "github.com/natefinch/atomic"
	"github.com/peterh/liner"
)

// REPL is the interactive command loop.
type REPL struct {
	out         io.Writer
	collection  *pagevirt.Collection[string]
	window      *pagevirt.SlidingWindow[string]
	liner       *liner.State
	history     string
	unsubscribe func()
	// updates counts lines replaced in view since the last show.
	updates atomic.Int64
}

var commands = []string{
	"show", "next", "prev", "grow", "shrink", "jump",
	"top", "end", "prefetch", "stats", "help", "quit",
}

var errQuit = errors.New("quit")

func newREPL(out io.Writer, collection *pagevirt.Collection[string],
	window *pagevirt.SlidingWindow[string], history string,
) *REPL {
	r := &REPL{
		out:        out,
		collection: collection,
		window:     window,
		history:    history,
	}
	r.unsubscribe = window.Subscribe(func(change pagevirt.Change[string]) {
		if change.Kind == pagevirt.ChangeReplace {
			r.updates.Add(1)
		}
	})
	return r
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	defer r.unsubscribe()
	r.liner = liner.NewLiner()
	defer r.liner.Close()
	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(completer)
	if f, err := os.Open(r.history); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Fprintf(r.out, "pagewalk - %d lines. Type 'help' for available commands.\n",
		r.collection.Len())
	r.show()
	for {
		line, err := r.liner.Prompt(r.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)
		fields := strings.Fields(line)
		err = r.execute(strings.ToLower(fields[0]), fields[1:])
		if errors.Is(err, errQuit) {
			break
		}
		if err != nil {
			fmt.Fprintln(r.out, "error:", err)
		}
	}
	r.saveHistory()
	return nil
}

func (r *REPL) prompt() string {
	marker := ""
	if r.updates.Load() > 0 {
		marker = "*"
	}
	return fmt.Sprintf("[%d+%d]%s> ", r.window.Offset(), r.window.Size(), marker)
}

func (r *REPL) execute(command string, args []string) error {
	switch command {
	case "exit", "quit", "q":
		return errQuit
	case "help", "?":
		r.printHelp()
		return nil
	case "show", "s":
		r.show()
		return nil
	case "stats":
		r.printStats()
		return nil
	case "prefetch":
		return r.window.Prefetch(context.Background())
	case "top":
		r.window.JumpTo(0)
	case "end":
		r.window.JumpTo(r.collection.Len())
	case "jump", "j":
		if len(args) != 1 {
			return errors.New("usage: jump <line>")
		}
		line, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		r.window.JumpTo(line)
	case "next", "n", "prev", "p", "grow", "shrink":
		count, err := repeatCount(args)
		if err != nil {
			return err
		}
		step := map[string]func(){
			"next":   r.window.SlideRight,
			"n":      r.window.SlideRight,
			"prev":   r.window.SlideLeft,
			"p":      r.window.SlideLeft,
			"grow":   r.window.IncreaseWindowSize,
			"shrink": r.window.DecreaseWindowSize,
		}[command]
		for range count {
			step()
		}
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", command)
	}
	r.show()
	return nil
}

func repeatCount(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	count, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, err
	}
	if count < 1 {
		return 0, fmt.Errorf("count must be >=1 but %d was given", count)
	}
	return count, nil
}

func (r *REPL) show() {
	r.updates.Store(0)
	offset := r.window.Offset()
	for i := range r.window.Size() {
		line, err := r.window.At(i)
		if err != nil {
			fmt.Fprintf(r.out, "%8d ! %v\n", offset+i, err)
			continue
		}
		fmt.Fprintf(r.out, "%8d | %s\n", offset+i, line)
	}
}

func (r *REPL) printStats() {
	stats := r.collection.Stats()
	fmt.Fprintf(r.out, "lines:    %d\n", r.collection.Len())
	fmt.Fprintf(r.out, "window:   %d+%d\n", r.window.Offset(), r.window.Size())
	fmt.Fprintf(r.out, "resident: %d pages\n", stats.ResidentPages)
	fmt.Fprintf(r.out, "loading:  %d pages\n", stats.LoadingPages)
}

func (r *REPL) printHelp() {
	fmt.Fprint(r.out, `Commands:
  show                 Print the lines in view
  next / n [count]     Slide the window down
  prev / p [count]     Slide the window up
  grow [count]         Add lines to the window
  shrink [count]       Remove lines from the window
  jump / j <line>      Move the window to a line
  top / end            Move the window to the start or end
  prefetch             Load every page in view
  stats                Show cache statistics
  exit / quit / q      Exit
`)
}

// saveHistory persists command history to disk.
func (r *REPL) saveHistory() {
	if r.history == "" {
		return
	}
	var buffer bytes.Buffer
	if _, err := r.liner.WriteHistory(&buffer); err != nil {
		return
	}
	if err := atomicfile.WriteFile(r.history, &buffer); err != nil {
		fmt.Fprintln(os.Stderr, "saving history:", err)
	}
}

func completer(line string) []string {
	var matches []string
	for _, command := range commands {
		if strings.HasPrefix(command, strings.ToLower(line)) {
			matches = append(matches, command)
		}
	}
	return matches
}
