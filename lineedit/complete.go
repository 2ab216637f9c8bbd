package lineedit

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"flintsh/interp"
)

// Completer produces candidates for the word under the cursor. commonPrefix
// is the longest prefix shared by every candidate. On each Tab the Editor
// inserts the only candidate, or else this prefix when it is non-empty, and
// lists the candidates only when they share no prefix; a second Tab does
// the same again, and there is no candidate menu.
type Completer interface {
	Complete(line string, cursor int) (candidates []string, commonPrefix string)
}

// Suggester proposes a dim inline completion of the rest of the current
// line, typically drawn from history (spec.md's "Autosuggestion").
type Suggester interface {
	Suggest(line string) (rest string, ok bool)
}

// HistorySuggester suggests the most recent history line sharing the
// current line as a prefix.
type HistorySuggester struct{ History *History }

func (s HistorySuggester) Suggest(line string) (string, bool) {
	if line == "" {
		return "", false
	}
	matches := s.History.Search(line, Prefix)
	if len(matches) == 0 {
		return "", false
	}
	best := matches[0].Line
	if len(best) <= len(line) {
		return "", false
	}
	return best[len(line):], true
}

// shellCompleter implements context-sensitive completion: the first word of
// the line completes against the runner's functions, a fixed list of builtin
// names and the executables in $PATH; any later word completes against the
// entries of its directory whose names start with the last path segment.
// Aliases are not offered, and abbreviated intermediate segments (such as
// "/u/l/b") are not expanded: every segment before the last is used as typed.
type shellCompleter struct {
	runner *interp.Runner

	mu    sync.Mutex
	cache map[string]cacheEntry
	boff  map[string]*backoff.ExponentialBackOff
}

type cacheEntry struct {
	candidates []string
	at         time.Time
}

const providerTTL = time.Hour

// NewShellCompleter builds a Completer backed by r's functions, a fixed list
// of builtin names and $PATH for command-position completion, and the
// filesystem otherwise. Aliases are not included.
func NewShellCompleter(r *interp.Runner) Completer {
	return &shellCompleter{
		runner: r,
		cache:  make(map[string]cacheEntry),
		boff:   make(map[string]*backoff.ExponentialBackOff),
	}
}

func (c *shellCompleter) Complete(line string, cursor int) ([]string, string) {
	prefix := line[:cursor]
	fields := strings.Fields(prefix)
	firstWord := len(fields) <= 1 && !strings.HasSuffix(prefix, " ")

	var word string
	if i := strings.LastIndexAny(prefix, " \t"); i >= 0 {
		word = prefix[i+1:]
	} else {
		word = prefix
	}

	var candidates []string
	if firstWord {
		candidates = c.commandCandidates(word)
	} else {
		candidates = c.pathCandidates(word)
	}

	sort.Strings(candidates)
	return candidates, commonPrefix(candidates)
}

func (c *shellCompleter) commandCandidates(word string) []string {
	if cached, ok := c.cached("cmd"); ok {
		return filterPrefix(cached, word)
	}
	var names []string
	for name := range c.runner.Funcs {
		names = append(names, name)
	}
	for _, name := range []string{
		"cd", "pwd", "pushd", "popd", "dirs", "exit", "echo", "printf", "env",
		"export", "set", "unset", "alias", "unalias", "type", "which", "hash",
		"help", "jobs", "fg", "bg", "kill", "wait", "disown", "eval", "exec",
		"source", ".", "command", "builtin", "true", "false", "test", "[",
		"read", "time", "times", "trap", "getopts", "timeout", "umask",
		"basename", "dirname", "realpath", "shift", "sleep", "history",
		"complete", "return", "break", "continue", "local", "declare", "readonly",
	} {
		names = append(names, name)
	}
	names = append(names, c.pathExecutables()...)
	c.store("cmd", names)
	return filterPrefix(names, word)
}

// pathExecutables lists the non-directory entries of every $PATH directory
// on each call. It keeps a back-off per directory and advances it when the
// directory errors or is empty, but never uses it to skip a directory;
// repeat scans are avoided only by commandCandidates' one-hour "cmd" cache.
func (c *shellCompleter) pathExecutables() []string {
	var names []string
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		c.mu.Lock()
		bo, ok := c.boff[dir]
		if !ok {
			bo = backoff.NewExponentialBackOff()
			bo.InitialInterval = time.Minute
			c.boff[dir] = bo
		}
		c.mu.Unlock()

		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) == 0 {
			bo.NextBackOff() // advance the backoff; caller-side scheduling is out of scope here
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
	}
	return names
}

func (c *shellCompleter) pathCandidates(word string) []string {
	dir, base := filepath.Split(word)
	searchDir := dir
	if searchDir == "" {
		searchDir = "."
	}
	entries, err := os.ReadDir(searchDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, base) {
			continue
		}
		full := dir + name
		if e.IsDir() {
			full += "/"
		}
		out = append(out, full)
	}
	return out
}

func (c *shellCompleter) cached(key string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[key]
	if !ok || time.Since(entry.at) > providerTTL {
		return nil, false
	}
	return entry.candidates, true
}

func (c *shellCompleter) store(key string, candidates []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{candidates: candidates, at: time.Now()}
}

func filterPrefix(candidates []string, prefix string) []string {
	var out []string
	for _, c := range candidates {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func commonPrefix(words []string) string {
	if len(words) == 0 {
		return ""
	}
	prefix := words[0]
	for _, w := range words[1:] {
		for !strings.HasPrefix(w, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}
