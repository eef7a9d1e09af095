package chunker

import (
	"regexp"
	"strings"
)

// SentenceChunker splits oversized text units on sentence boundaries so that
// each piece stays under a word budget.
type SentenceChunker struct {
	maxWords int
	splitter *regexp.Regexp
}

func NewSentenceChunker(maxWords int) *SentenceChunker {
	if maxWords <= 0 {
		maxWords = 512
	}
	return &SentenceChunker{
		maxWords: maxWords,
		splitter: regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

// Split returns text unchanged when it fits, otherwise consecutive groups of
// whole sentences. A sentence longer than the budget is cut into word windows.
func (c *SentenceChunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(strings.Fields(text)) <= c.maxWords {
		return []string{text}
	}

	var (
		out   []string
		cur   []string
		count int
	)
	emit := func() {
		if len(cur) > 0 {
			out = append(out, strings.Join(cur, " "))
			cur = cur[:0]
			count = 0
		}
	}
	for _, s := range c.sentences(text) {
		n := len(strings.Fields(s))
		if n > c.maxWords {
			emit()
			out = append(out, windows(s, c.maxWords)...)
			continue
		}
		if count+n > c.maxWords {
			emit()
		}
		cur = append(cur, s)
		count += n
	}
	emit()
	return out
}

func (c *SentenceChunker) sentences(text string) []string {
	locs := c.splitter.FindAllStringIndex(text, -1)
	var out []string
	end := 0
	for _, loc := range locs {
		if s := strings.TrimSpace(text[loc[0]:loc[1]]); s != "" {
			out = append(out, s)
		}
		end = loc[1]
	}
	if tail := strings.TrimSpace(text[end:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func windows(s string, size int) []string {
	words := strings.Fields(s)
	var out []string
	for i := 0; i < len(words); i += size {
		j := i + size
		if j > len(words) {
			j = len(words)
		}
		out = append(out, strings.Join(words[i:j], " "))
	}
	return out
}
