// Package lineedit implements flint's interactive line editor: raw-mode
// input, history with substring/prefix/fuzzy search and a reverse-i-search
// prompt, inline autosuggestion, and context-sensitive completion.
//
// The editor is single-threaded and cooperative: ReadLine only ever
// processes one input byte at a time from the calling goroutine. The sole
// concurrency it introduces is an optional background worker that enriches
// the prompt (e.g. computing a VCS status segment) and publishes its result
// through a single mutex-guarded slot that the render step polls without
// blocking, matching the "no general async runtime" design of a shell line
// editor.
package lineedit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

// Option configures an Editor at construction time.
type Option func(*Editor)

// WithHistory attaches a persistent, bounded history file.
func WithHistory(path string, max int) Option {
	return func(e *Editor) {
		h, err := OpenHistory(path, max)
		if err == nil {
			e.history = h
			e.suggester = HistorySuggester{History: h}
		}
	}
}

// WithPrompt sets the function used to render PS1 (continuation=false) or
// PS2 (continuation=true).
func WithPrompt(f func(continuation bool) string) Option {
	return func(e *Editor) { e.promptFunc = f }
}

// WithCompleter attaches a Completer used for Tab completion.
func WithCompleter(c Completer) Option {
	return func(e *Editor) { e.completer = c }
}

// WithEnricher installs a background callback, started once at the beginning
// of each ReadLine, whose result is spliced onto the right of the rendered prompt once ready,
// without blocking input (spec.md §5's "result slot" model).
func WithEnricher(f func(ctx context.Context) string) Option {
	return func(e *Editor) { e.enrich = f }
}

// Editor is a single readline-style line editor bound to one terminal.
type Editor struct {
	in     *os.File
	out    *os.File
	reader *bufio.Reader

	state *term.State // nil if raw mode couldn't be entered

	promptFunc func(continuation bool) string
	completer  Completer
	suggester  Suggester
	history    *History
	enrich     func(ctx context.Context) string

	buf    []rune
	cursor int

	enrichMu  sync.Mutex
	enrichVal string
}

// New constructs an Editor over in/out, switching in into raw mode. It
// returns an error if in is not a terminal, in which case the caller should
// fall back to a non-interactive read loop.
func New(in, out *os.File, opts ...Option) (*Editor, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("lineedit: not a terminal")
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	e := &Editor{
		in:         in,
		out:        out,
		reader:     bufio.NewReader(in),
		state:      state,
		promptFunc: func(continuation bool) string { return "$ " },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close restores the terminal to its original (cooked) mode and flushes
// history to disk.
func (e *Editor) Close() error {
	if e.history != nil {
		e.history.Close()
	}
	if e.state == nil {
		return nil
	}
	return term.Restore(int(e.in.Fd()), e.state)
}

// AddHistory records a submitted line.
func (e *Editor) AddHistory(line string) {
	if e.history != nil {
		e.history.Add(line)
	}
}

const (
	keyCtrlA = 1
	keyCtrlB = 2
	keyCtrlC = 3
	keyCtrlD = 4
	keyCtrlE = 5
	keyCtrlF = 6
	keyTab   = 9
	keyEnter = 13
	keyCtrlK = 11
	keyCtrlL = 12
	keyCtrlN = 14
	keyCtrlP = 16
	keyCtrlR = 18
	keyCtrlU = 21
	keyCtrlW = 23
	keyEsc   = 27
	keyBS    = 127
)

// ReadLine reads one logical line of input, honoring multi-line
// continuation: after Enter, if incomplete(currentBuffer) reports true, the
// editor switches to the PS2 prompt and keeps accumulating instead of
// returning, appending a newline to the buffer each time.
func (e *Editor) ReadLine(ctx context.Context, incomplete func(string) bool) (string, error) {
	e.buf = e.buf[:0]
	e.cursor = 0
	historyIdx := -1

	var eg *errgroup.Group
	var egCtx context.Context
	if e.enrich != nil {
		eg, egCtx = errgroup.WithContext(ctx)
		eg.Go(func() error {
			val := e.enrich(egCtx)
			e.enrichMu.Lock()
			e.enrichVal = val
			e.enrichMu.Unlock()
			return nil
		})
	}

	e.redraw(false)
	for {
		r, _, err := e.reader.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) && len(e.buf) == 0 {
				return "", io.EOF
			}
			return "", err
		}

		switch r {
		case keyCtrlC:
			e.buf = e.buf[:0]
			e.cursor = 0
			fmt.Fprint(e.out, "^C\r\n")
			e.redraw(false)
			continue
		case keyCtrlD:
			if len(e.buf) == 0 {
				return "", io.EOF
			}
		case keyEnter:
			line := string(e.buf)
			if incomplete != nil && incomplete(line) {
				e.buf = append(e.buf, '\n')
				e.cursor = len(e.buf)
				fmt.Fprint(e.out, "\r\n")
				e.redraw(true)
				continue
			}
			fmt.Fprint(e.out, "\r\n")
			return line, nil
		case keyCtrlA:
			e.cursor = 0
		case keyCtrlE:
			e.cursor = len(e.buf)
		case keyCtrlB:
			if e.cursor > 0 {
				e.cursor--
			}
		case keyCtrlF:
			if e.cursor < len(e.buf) {
				e.cursor++
			}
		case keyCtrlK:
			e.buf = e.buf[:e.cursor]
		case keyCtrlU:
			e.buf = e.buf[e.cursor:]
			e.cursor = 0
		case keyCtrlW:
			e.deleteWordBefore()
		case keyCtrlL:
			fmt.Fprint(e.out, "\x1b[H\x1b[2J")
		case keyCtrlN:
			e.historyMove(&historyIdx, 1)
		case keyCtrlP:
			e.historyMove(&historyIdx, -1)
		case keyCtrlR:
			if e.history != nil {
				line, ok := e.reverseSearch()
				if ok {
					e.buf = []rune(line)
					e.cursor = len(e.buf)
				}
			}
		case keyTab:
			e.complete()
		case keyBS, 8:
			if e.cursor > 0 {
				e.buf = append(e.buf[:e.cursor-1], e.buf[e.cursor:]...)
				e.cursor--
			}
		case keyEsc:
			e.readEscape(&historyIdx)
		default:
			if r >= 0x20 || r == '\t' {
				e.buf = append(e.buf[:e.cursor], append([]rune{r}, e.buf[e.cursor:]...)...)
				e.cursor++
			}
		}
		e.redraw(len(e.buf) > 0 && e.buf[len(e.buf)-1] == '\n')
	}
}

// readEscape consumes the remainder of an ANSI arrow-key sequence
// (ESC [ A/B/C/D) and applies the corresponding movement or history recall.
func (e *Editor) readEscape(historyIdx *int) {
	b1, err := e.reader.ReadByte()
	if err != nil || b1 != '[' {
		return
	}
	b2, err := e.reader.ReadByte()
	if err != nil {
		return
	}
	switch b2 {
	case 'C': // right
		if e.cursor < len(e.buf) {
			e.cursor++
		}
	case 'D': // left
		if e.cursor > 0 {
			e.cursor--
		}
	case 'A', 'B': // up/down: recall history from the caller's ReadLine position
		dir := 1
		if b2 == 'A' {
			dir = -1
		}
		e.historyMove(historyIdx, dir)
	}
}

func (e *Editor) deleteWordBefore() {
	i := e.cursor
	for i > 0 && e.buf[i-1] == ' ' {
		i--
	}
	for i > 0 && e.buf[i-1] != ' ' {
		i--
	}
	e.buf = append(e.buf[:i], e.buf[e.cursor:]...)
	e.cursor = i
}

func (e *Editor) historyMove(idx *int, dir int) {
	if e.history == nil || e.history.Len() == 0 {
		return
	}
	if *idx < 0 {
		*idx = e.history.Len()
	}
	*idx += dir
	if *idx < 0 {
		*idx = 0
	}
	if *idx >= e.history.Len() {
		*idx = e.history.Len()
		e.buf = e.buf[:0]
		e.cursor = 0
		return
	}
	e.buf = []rune(e.history.At(*idx))
	e.cursor = len(e.buf)
}

func (e *Editor) complete() {
	if e.completer == nil {
		return
	}
	candidates, prefix := e.completer.Complete(string(e.buf), e.cursor)
	switch {
	case len(candidates) == 0:
		return
	case len(candidates) == 1:
		e.insertCompletion(candidates[0])
	case prefix != "":
		e.insertCompletion(prefix)
	default:
		fmt.Fprint(e.out, "\r\n")
		fmt.Fprintln(e.out, strings.Join(candidates, "  "))
		e.redraw(false)
	}
}

func (e *Editor) insertCompletion(word string) {
	line := string(e.buf)
	start := e.cursor
	for start > 0 && line[start-1] != ' ' {
		start--
	}
	newLine := line[:start] + word + line[e.cursor:]
	e.buf = []rune(newLine)
	e.cursor = start + len(word)
}

// reverseSearch implements Ctrl-R: an isearch-style prompt that narrows
// history matches as the user types, returning the selected line.
func (e *Editor) reverseSearch() (string, bool) {
	banner := color.New(color.FgYellow)
	var query strings.Builder
	for {
		matches := e.history.Search(query.String(), Substring)
		match := ""
		if len(matches) > 0 {
			match = matches[0].Line
		}
		fmt.Fprint(e.out, "\r\x1b[2K")
		banner.Fprintf(e.out, "(reverse-i-search)'%s': ", query.String())
		fmt.Fprint(e.out, match)

		r, _, err := e.reader.ReadRune()
		if err != nil {
			return "", false
		}
		switch r {
		case keyEnter:
			fmt.Fprint(e.out, "\r\n")
			return match, match != ""
		case keyCtrlC, keyEsc:
			fmt.Fprint(e.out, "\r\n")
			return "", false
		case keyBS, 8:
			s := query.String()
			if len(s) > 0 {
				query.Reset()
				query.WriteString(s[:len(s)-1])
			}
		case keyCtrlR:
			// cycle to the next older match: drop the newest and re-search
			// is out of scope for this minimal isearch; re-running Search
			// with the same query already re-ranks on every keystroke.
		default:
			if r >= 0x20 {
				query.WriteRune(r)
			}
		}
	}
}

func (e *Editor) redraw(continuation bool) {
	prompt := e.promptFunc(continuation)
	line := string(e.buf)

	var suggestion string
	if e.suggester != nil {
		if rest, ok := e.suggester.Suggest(line); ok {
			suggestion = rest
		}
	}

	e.enrichMu.Lock()
	enrich := e.enrichVal
	e.enrichMu.Unlock()
	if enrich != "" {
		prompt = prompt + enrich + " "
	}

	fmt.Fprint(e.out, "\r\x1b[2K", prompt, line)
	if suggestion != "" {
		color.New(color.FgHiBlack).Fprint(e.out, suggestion)
	}
	// position cursor: prompt + runes up to e.cursor, accounting for the
	// dim suggestion tail drawn but not yet part of the buffer.
	back := len([]rune(suggestion)) + (len([]rune(line)) - e.cursor)
	if back > 0 {
		fmt.Fprintf(e.out, "\x1b[%dD", back)
	}
}
