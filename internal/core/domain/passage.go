package domain

import "fmt"

// PageText is one page (or sheet) of extracted source text, before chunking.
type PageText struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Passage is the unit of retrieval. Immutable once created by the chunker;
// a corpus rebuild replaces passages wholesale, it never mutates them.
type Passage struct {
	ID         string `json:"id"`
	Ordinal    int    `json:"ordinal"`
	Text       string `json:"text"`
	Source     string `json:"source"`
	Page       int    `json:"page"`
	WordOffset int    `json:"word_offset"`
}

// PassageID derives the stable passage identifier from its source document
// and ordinal position within it.
func PassageID(source string, ordinal int) string {
	return fmt.Sprintf("%s#%04d", source, ordinal)
}

// Corpus is the ordered set of passages one index pair is built over.
// Version is the content fingerprint shared by the dense and sparse halves.
type Corpus struct {
	Version  string    `json:"version"`
	Model    string    `json:"model"`
	Passages []Passage `json:"passages"`
}
