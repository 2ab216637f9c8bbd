// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package expand

import (
	"strconv"
	"strings"

	"flintsh/syntax"
)

// Braces performs Bash brace expansion on a word. For example, passing it a
// single-literal word "foo{bar,baz}" will return two single-literal words,
// "foobar" and "foobaz". The word must have already been processed by
// [syntax.SplitBraces].
//
// It does not return an error; malformed brace expansions are simply skipped.
//
// Note that the resulting words may have more word parts than necessary, such
// as contiguous *syntax.Lit nodes, and that these parts may be shared between
// words.
func Braces(word *syntax.Word) []*syntax.Word {
	for i, wp := range word.Parts {
		br, ok := wp.(*syntax.BraceExp)
		if !ok {
			continue
		}
		var elems []*syntax.Word
		if br.Sequence {
			elems = sequenceElems(br)
		} else {
			elems = br.Elems
		}
		var all []*syntax.Word
		for _, elem := range elems {
			parts := make([]syntax.WordPart, 0, len(word.Parts)-1+len(elem.Parts))
			parts = append(parts, word.Parts[:i]...)
			parts = append(parts, elem.Parts...)
			parts = append(parts, word.Parts[i+1:]...)
			all = append(all, Braces(&syntax.Word{Parts: parts})...)
		}
		return all
	}
	return []*syntax.Word{word}
}

func sequenceElems(br *syntax.BraceExp) []*syntax.Word {
	if len(br.Elems) < 2 {
		return br.Elems
	}
	start := br.Elems[0].Lit()
	end := br.Elems[1].Lit()
	incr := 0
	if len(br.Elems) > 2 {
		incr, _ = strconv.Atoi(br.Elems[2].Lit())
	}
	if br.Chars {
		if len(start) != 1 || len(end) != 1 {
			return br.Elems
		}
		return charSequence(start[0], end[0], incr)
	}
	words := numberSequence(start, end, incr)
	if words == nil {
		return br.Elems
	}
	return words
}

func litWord(s string) *syntax.Word {
	return &syntax.Word{Parts: []syntax.WordPart{&syntax.Lit{Value: s}}}
}

func numberSequence(startS, endS string, incr int) []*syntax.Word {
	start, err := strconv.Atoi(startS)
	if err != nil {
		return nil
	}
	end, err := strconv.Atoi(endS)
	if err != nil {
		return nil
	}
	width := 0
	if w := zeroPadWidth(startS); w > width {
		width = w
	}
	if w := zeroPadWidth(endS); w > width {
		width = w
	}
	if incr == 0 {
		incr = 1
	}
	incr = abs(incr)
	if start > end {
		incr = -incr
	}
	var words []*syntax.Word
	for n := start; (incr > 0 && n <= end) || (incr < 0 && n >= end); n += incr {
		words = append(words, litWord(padNumber(n, width)))
	}
	return words
}

// zeroPadWidth reports the digit width to zero-pad to, if s looks like an
// explicitly zero-padded number such as "007" or "-01".
func zeroPadWidth(s string) int {
	digits := strings.TrimPrefix(s, "-")
	if len(digits) > 1 && digits[0] == '0' {
		return len(digits)
	}
	return 0
}

func padNumber(n, width int) string {
	s := strconv.Itoa(n)
	if width == 0 {
		return s
	}
	neg := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")
	for len(digits) < width {
		digits = "0" + digits
	}
	if neg {
		return "-" + digits
	}
	return digits
}

func charSequence(start, end byte, incr int) []*syntax.Word {
	if incr == 0 {
		incr = 1
	}
	incr = abs(incr)
	var words []*syntax.Word
	if start <= end {
		for c := int(start); c <= int(end); c += incr {
			words = append(words, litWord(string(rune(c))))
		}
	} else {
		for c := int(start); c >= int(end); c -= incr {
			words = append(words, litWord(string(rune(c))))
		}
	}
	return words
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
