// Package regroup merges small structural chunks into passages whose size
// falls in a target word band.
package regroup

import (
	"strings"

	"wikirag/internal/domain"
)

// DefaultSlack is how far past MaxWords a passage may grow before it is cut.
const DefaultSlack = 50

// Bounds is the target word band of a passage.
type Bounds struct {
	MinWords int
	MaxWords int
	Slack    int
}

func (b Bounds) ceiling() int {
	slack := b.Slack
	if slack < 0 {
		slack = 0
	}
	return b.MaxWords + slack
}

// Regroup accumulates consecutive raw chunks greedily, in input order.
//
// A chunk that would push the buffer past MaxWords+Slack closes the current
// buffer first. After each append the buffer is emitted as soon as it holds
// MinWords words. Whatever remains at the end is emitted as the last passage.
// A single chunk larger than the ceiling is emitted on its own, unsplit.
// The first chunk of each buffer becomes the passage's representative.
func Regroup(chunks []domain.RawChunk, b Bounds) []domain.Passage {
	var (
		out   []domain.Passage
		buf   []string
		rep   domain.RawChunk
		count int
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		out = append(out, domain.Passage{Text: strings.Join(buf, "\n\n"), Representative: rep})
		buf = buf[:0]
		count = 0
	}

	for _, c := range chunks {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		n := WordCount(text)
		if count+n > b.ceiling() && len(buf) > 0 {
			flush()
		}
		if len(buf) == 0 {
			rep = c
		}
		buf = append(buf, text)
		count += n
		if count >= b.MinWords {
			flush()
		}
	}
	flush()
	return out
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
