package lineedit

import (
	"bufio"
	"os"
	"sort"
	"strings"
	"sync"
)

// SearchMode selects how History.Search matches a query against past lines.
type SearchMode int

const (
	Substring SearchMode = iota
	Prefix
	Fuzzy
)

// Entry is one matched history line, with its original index preserved so
// callers can jump to entries adjacent to a match.
type Entry struct {
	Index int
	Line  string
	Score int // only meaningful for Fuzzy
}

// History is a bounded, append-only-on-disk command history. Lines are kept
// in memory up to Max entries (oldest dropped first), and are appended to
// the backing file as they're added so the file itself remains a durable
// record even across crashes, matching an append-only $HISTFILE.
type History struct {
	mu      sync.Mutex
	lines   []string
	max     int
	file    *os.File
	cursor  int // current position while browsing with up/down, len(lines) means "new line"
}

// OpenHistory opens (creating if necessary) the history file at path and
// loads up to max existing lines from it.
func OpenHistory(path string, max int) (*History, error) {
	if max <= 0 {
		max = 50000
	}
	h := &History{max: max}
	if path == "" {
		return h, nil
	}
	if f, err := os.Open(path); err == nil {
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			h.lines = append(h.lines, sc.Text())
		}
		f.Close()
		if len(h.lines) > max {
			h.lines = h.lines[len(h.lines)-max:]
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	h.file = f
	h.cursor = len(h.lines)
	return h, nil
}

// Add appends a line to history, collapsing it with the previous entry if
// they're identical (bash's HISTCONTROL=ignoredups behavior, applied
// unconditionally here).
func (h *History) Add(line string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if line == "" {
		return nil
	}
	if n := len(h.lines); n > 0 && h.lines[n-1] == line {
		h.cursor = len(h.lines)
		return nil
	}
	h.lines = append(h.lines, line)
	if len(h.lines) > h.max {
		h.lines = h.lines[1:]
	}
	h.cursor = len(h.lines)
	if h.file != nil {
		if _, err := h.file.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Len reports how many lines are currently retained in memory.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.lines)
}

// At returns the line at idx, or "" if out of range.
func (h *History) At(idx int) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if idx < 0 || idx >= len(h.lines) {
		return ""
	}
	return h.lines[idx]
}

// Close flushes and closes the backing file, if any.
func (h *History) Close() error {
	if h.file == nil {
		return nil
	}
	return h.file.Close()
}

// Search returns matches for query under the given mode, most relevant
// first. Substring and Prefix preserve recency order (most recent first);
// Fuzzy sorts by descending score.
func (h *History) Search(query string, mode SearchMode) []Entry {
	h.mu.Lock()
	lines := append([]string(nil), h.lines...)
	h.mu.Unlock()

	var out []Entry
	switch mode {
	case Prefix:
		for i := len(lines) - 1; i >= 0; i-- {
			if strings.HasPrefix(lines[i], query) {
				out = append(out, Entry{Index: i, Line: lines[i]})
			}
		}
	case Fuzzy:
		for i, line := range lines {
			if score, ok := fuzzyScore(query, line); ok {
				out = append(out, Entry{Index: i, Line: line, Score: score})
			}
		}
		sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	default: // Substring
		for i := len(lines) - 1; i >= 0; i-- {
			if strings.Contains(lines[i], query) {
				out = append(out, Entry{Index: i, Line: lines[i]})
			}
		}
	}
	return out
}

// fuzzyScore reports whether every rune of query appears in line in order,
// and a monotone score rewarding contiguous runs and matches at word
// boundaries — the same shape of heuristic fzf-style matchers use. Returns
// ok=false when query doesn't subsequence-match line at all.
func fuzzyScore(query, line string) (int, bool) {
	if query == "" {
		return 0, true
	}
	q := []rune(strings.ToLower(query))
	l := []rune(strings.ToLower(line))
	qi := 0
	score := 0
	prevMatched := false
	for li := 0; li < len(l) && qi < len(q); li++ {
		if l[li] != q[qi] {
			prevMatched = false
			continue
		}
		bonus := 1
		if prevMatched {
			bonus += 3 // contiguous run
		}
		if li == 0 || l[li-1] == ' ' || l[li-1] == '/' || l[li-1] == '-' {
			bonus += 2 // word-boundary start
		}
		score += bonus
		prevMatched = true
		qi++
	}
	if qi != len(q) {
		return 0, false
	}
	return score, true
}
