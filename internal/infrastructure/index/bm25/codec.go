package bm25

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/careloop/discharge-assistant/internal/core/domain"
)

// On-disk layout, little-endian, all strings length-prefixed (u32 + bytes):
//
//	magic "KBSX" | u16 format version | corpus version string
//	u32 passage count | passages (id, ordinal, source, page, word offset, text)
//	u32 lengths[count]
//	u32 term count | terms sorted ascending (term, u32 posting count,
//	                 postings as u32 passage index + u32 freq)
//
// The format is a contract: decoding rejects unknown magic or versions
// instead of guessing.
const (
	codecMagic   = "KBSX"
	codecVersion = uint16(1)
)

// Encode writes the index in the versioned binary format. Terms are
// emitted in sorted order so identical indexes serialize identically.
func (idx *Index) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(codecMagic); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, codecVersion); err != nil {
		return fmt.Errorf("write format version: %w", err)
	}
	if err := writeString(bw, idx.version); err != nil {
		return fmt.Errorf("write corpus version: %w", err)
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(idx.passages))); err != nil {
		return fmt.Errorf("write passage count: %w", err)
	}
	for _, p := range idx.passages {
		if err := writePassage(bw, p); err != nil {
			return err
		}
	}
	for _, l := range idx.lengths {
		if err := binary.Write(bw, binary.LittleEndian, uint32(l)); err != nil {
			return fmt.Errorf("write passage length: %w", err)
		}
	}

	terms := make([]string, 0, len(idx.postings))
	for term := range idx.postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(terms))); err != nil {
		return fmt.Errorf("write term count: %w", err)
	}
	for _, term := range terms {
		if err := writeString(bw, term); err != nil {
			return fmt.Errorf("write term: %w", err)
		}
		plist := idx.postings[term]
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(plist))); err != nil {
			return fmt.Errorf("write posting count: %w", err)
		}
		for _, po := range plist {
			if err := binary.Write(bw, binary.LittleEndian, uint32(po.passage)); err != nil {
				return fmt.Errorf("write posting passage: %w", err)
			}
			if err := binary.Write(bw, binary.LittleEndian, uint32(po.freq)); err != nil {
				return fmt.Errorf("write posting freq: %w", err)
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush sparse index: %w", err)
	}
	return nil
}

// Decode reads an index previously written by Encode.
func Decode(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(codecMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != codecMagic {
		return nil, fmt.Errorf("not a sparse index file (magic %q)", magic)
	}
	var formatVersion uint16
	if err := binary.Read(br, binary.LittleEndian, &formatVersion); err != nil {
		return nil, fmt.Errorf("read format version: %w", err)
	}
	if formatVersion != codecVersion {
		return nil, fmt.Errorf("unsupported sparse index format version %d", formatVersion)
	}

	version, err := readString(br)
	if err != nil {
		return nil, fmt.Errorf("read corpus version: %w", err)
	}

	var passageCount uint32
	if err := binary.Read(br, binary.LittleEndian, &passageCount); err != nil {
		return nil, fmt.Errorf("read passage count: %w", err)
	}
	idx := &Index{
		version:  version,
		passages: make([]domain.Passage, passageCount),
		lengths:  make([]int32, passageCount),
		postings: make(map[string][]posting),
	}
	for i := range idx.passages {
		p, err := readPassage(br)
		if err != nil {
			return nil, err
		}
		idx.passages[i] = p
	}
	totalLen := 0
	for i := range idx.lengths {
		var l uint32
		if err := binary.Read(br, binary.LittleEndian, &l); err != nil {
			return nil, fmt.Errorf("read passage length: %w", err)
		}
		idx.lengths[i] = int32(l)
		totalLen += int(l)
	}
	if passageCount > 0 {
		idx.avgLen = float64(totalLen) / float64(passageCount)
	}

	var termCount uint32
	if err := binary.Read(br, binary.LittleEndian, &termCount); err != nil {
		return nil, fmt.Errorf("read term count: %w", err)
	}
	for t := uint32(0); t < termCount; t++ {
		term, err := readString(br)
		if err != nil {
			return nil, fmt.Errorf("read term: %w", err)
		}
		var postingCount uint32
		if err := binary.Read(br, binary.LittleEndian, &postingCount); err != nil {
			return nil, fmt.Errorf("read posting count: %w", err)
		}
		plist := make([]posting, postingCount)
		for i := range plist {
			var passage, freq uint32
			if err := binary.Read(br, binary.LittleEndian, &passage); err != nil {
				return nil, fmt.Errorf("read posting passage: %w", err)
			}
			if err := binary.Read(br, binary.LittleEndian, &freq); err != nil {
				return nil, fmt.Errorf("read posting freq: %w", err)
			}
			if passage >= passageCount {
				return nil, fmt.Errorf("posting references passage %d of %d", passage, passageCount)
			}
			plist[i] = posting{passage: int32(passage), freq: int32(freq)}
		}
		idx.postings[term] = plist
	}

	return idx, nil
}

func writePassage(w *bufio.Writer, p domain.Passage) error {
	if err := writeString(w, p.ID); err != nil {
		return fmt.Errorf("write passage id: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(p.Ordinal)); err != nil {
		return fmt.Errorf("write passage ordinal: %w", err)
	}
	if err := writeString(w, p.Source); err != nil {
		return fmt.Errorf("write passage source: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(p.Page)); err != nil {
		return fmt.Errorf("write passage page: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(p.WordOffset)); err != nil {
		return fmt.Errorf("write passage word offset: %w", err)
	}
	if err := writeString(w, p.Text); err != nil {
		return fmt.Errorf("write passage text: %w", err)
	}
	return nil
}

func readPassage(r *bufio.Reader) (domain.Passage, error) {
	var p domain.Passage
	var err error
	if p.ID, err = readString(r); err != nil {
		return p, fmt.Errorf("read passage id: %w", err)
	}
	var ordinal, page, offset uint32
	if err := binary.Read(r, binary.LittleEndian, &ordinal); err != nil {
		return p, fmt.Errorf("read passage ordinal: %w", err)
	}
	if p.Source, err = readString(r); err != nil {
		return p, fmt.Errorf("read passage source: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &page); err != nil {
		return p, fmt.Errorf("read passage page: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &offset); err != nil {
		return p, fmt.Errorf("read passage word offset: %w", err)
	}
	if p.Text, err = readString(r); err != nil {
		return p, fmt.Errorf("read passage text: %w", err)
	}
	p.Ordinal = int(ordinal)
	p.Page = int(page)
	p.WordOffset = int(offset)
	return p, nil
}

func writeString(w *bufio.Writer, s string) error {
	if len(s) > math.MaxUint32 {
		return fmt.Errorf("string too long: %d bytes", len(s))
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func readString(r *bufio.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
