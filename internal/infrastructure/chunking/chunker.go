// Package chunking splits extracted document pages into overlapping
// retrieval passages. Splits prefer structural boundaries (paragraph,
// then sentence) and fall back to hard word splits only for sentences
// longer than the chunk size. Output is fully deterministic for a given
// input and configuration.
package chunking

import (
	"strings"

	"github.com/careloop/discharge-assistant/internal/core/domain"
)

type Chunker struct {
	// SizeWords bounds the passage length in words.
	SizeWords int
	// OverlapWords is how many trailing words of one passage reappear as
	// the leading words of the next, within the same page.
	OverlapWords int
}

func NewChunker(sizeWords, overlapWords int) *Chunker {
	if sizeWords <= 0 {
		sizeWords = 200
	}
	if overlapWords < 0 {
		overlapWords = 0
	}
	if overlapWords >= sizeWords {
		overlapWords = sizeWords / 4
	}
	return &Chunker{
		SizeWords:    sizeWords,
		OverlapWords: overlapWords,
	}
}

// unit is one sentence worth of words plus its word offset within the page.
type unit struct {
	words  []string
	offset int
}

// Chunk produces passages with monotonically increasing ordinals across
// pages. Overlap never crosses a page boundary so page metadata stays exact.
// Empty or whitespace-only input yields an empty result, not an error.
func (c *Chunker) Chunk(source string, pages []domain.PageText) []domain.Passage {
	var out []domain.Passage
	ordinal := 0

	for _, page := range pages {
		units := c.pageUnits(page.Text)
		if len(units) == 0 {
			continue
		}

		var cur []string
		curStart := 0

		flush := func() {
			if len(cur) == 0 {
				return
			}
			out = append(out, domain.Passage{
				ID:         domain.PassageID(source, ordinal),
				Ordinal:    ordinal,
				Text:       strings.Join(cur, " "),
				Source:     source,
				Page:       page.Number,
				WordOffset: curStart,
			})
			ordinal++
		}

		for _, u := range units {
			if len(cur) > 0 && len(cur)+len(u.words) > c.SizeWords {
				prevStart, prevLen := curStart, len(cur)
				flush()

				if c.OverlapWords > 0 {
					tail := out[len(out)-1].Text
					words := strings.Fields(tail)
					carry := c.OverlapWords
					if carry > len(words) {
						carry = len(words)
					}
					cur = append([]string(nil), words[len(words)-carry:]...)
					curStart = prevStart + prevLen - carry
				} else {
					cur = nil
					curStart = u.offset
				}
			}
			if len(cur) == 0 {
				curStart = u.offset
			}
			cur = append(cur, u.words...)
		}
		flush()
	}

	return out
}

// pageUnits splits a page into sentence units. Sentences longer than the
// residual capacity after overlap seeding are hard-split so a single unit
// can never push a passage past the size bound.
func (c *Chunker) pageUnits(text string) []unit {
	maxUnit := c.SizeWords - c.OverlapWords
	if maxUnit <= 0 {
		maxUnit = c.SizeWords
	}

	var units []unit
	offset := 0
	for _, paragraph := range splitParagraphs(text) {
		for _, sentence := range splitSentences(paragraph) {
			words := strings.Fields(sentence)
			if len(words) == 0 {
				continue
			}
			for start := 0; start < len(words); start += maxUnit {
				end := start + maxUnit
				if end > len(words) {
					end = len(words)
				}
				units = append(units, unit{
					words:  words[start:end],
					offset: offset + start,
				})
			}
			offset += len(words)
		}
	}
	return units
}

func splitParagraphs(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(normalized, "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitSentences(paragraph string) []string {
	var (
		out []string
		b   strings.Builder
	)
	runes := []rune(paragraph)
	for i, r := range runes {
		b.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Sentence boundary only when the terminator ends the paragraph or
		// is followed by whitespace, so "3.5" stays intact.
		if i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}
