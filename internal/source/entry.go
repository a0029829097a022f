// Package source maps byte offsets inside compiled files to line/column
// positions without keeping the files open.
package source

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sort"

	"fortio.org/safecast"

	"strata/internal/ice"
)

const (
	// UndefinedOffset marks an offset that was never assigned. Querying it is a bug.
	UndefinedOffset int32 = -1
	// SyntheticOffset marks compiler-generated code; it always resolves to line 0.
	SyntheticOffset int32 = -2
)

// LineSeparatorLength is the terminator length assumed for every line when an
// entry is built. Files written with a different convention (CRLF) resolve to
// shifted positions; the index does not try to detect that.
const LineSeparatorLength int32 = 1

// FileEntry is the line-start index of one source file.
//
// lineStarts holds the start offset of every line followed by a sentinel equal
// to the total accounted length, so it is strictly increasing whenever the file
// is non-empty.
type FileEntry struct {
	Name       string
	lineStarts []int32
}

// NewFileEntry reads name once and indexes its lines. A missing or non-regular
// file yields an empty entry whose lookups all return the synthetic position.
func NewFileEntry(name string) *FileEntry {
	info, err := os.Stat(name)
	if err != nil || !info.Mode().IsRegular() {
		return &FileEntry{Name: name}
	}
	// #nosec G304 -- path comes from the analyzed module
	content, err := os.ReadFile(name)
	if err != nil {
		return &FileEntry{Name: name}
	}
	return NewFileEntryFromContent(name, content)
}

// NewFileEntryFromContent indexes an in-memory file.
func NewFileEntryFromContent(name string, content []byte) *FileEntry {
	entry := &FileEntry{Name: name}
	if len(content) == 0 {
		return entry
	}
	starts := make([]int32, 0, bytes.Count(content, []byte{'\n'})+2)
	var current int32
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), len(content)+1)
	for sc.Scan() {
		// ScanLines уже срезает '\r' перед '\n', длина строки считается без него.
		lineLen, err := safecast.Conv[int32](len(sc.Bytes()))
		if err != nil {
			panic(fmt.Errorf("line length overflow: %w", err))
		}
		starts = append(starts, current)
		current += lineLen + LineSeparatorLength
	}
	starts = append(starts, current)
	entry.lineStarts = starts
	return entry
}

// Empty reports whether the entry has no line information.
func (e *FileEntry) Empty() bool { return len(e.lineStarts) == 0 }

// LineCount returns the number of indexed lines (without the sentinel).
func (e *FileEntry) LineCount() int {
	if e.Empty() {
		return 0
	}
	return len(e.lineStarts) - 1
}

// LineNumber returns the 0-based line containing offset.
func (e *FileEntry) LineNumber(offset int32) int {
	if offset == UndefinedOffset {
		ice.Panic("file "+e.Name, "line lookup for undefined offset")
	}
	if offset == SyntheticOffset || e.Empty() {
		return 0
	}
	idx := sort.Search(len(e.lineStarts), func(i int) bool { return e.lineStarts[i] >= offset })
	if idx < len(e.lineStarts) && e.lineStarts[idx] == offset {
		return idx
	}
	// промах: точка вставки минус один
	return idx - 1
}

// ColumnNumber returns the 0-based column of offset within its line.
func (e *FileEntry) ColumnNumber(offset int32) int {
	if offset == UndefinedOffset {
		ice.Panic("file "+e.Name, "column lookup for undefined offset")
	}
	if offset == SyntheticOffset || e.Empty() {
		return 0
	}
	line := e.LineNumber(offset)
	if line < 0 {
		// offsets before the first line only happen for negative input
		return int(offset)
	}
	return int(offset - e.lineStarts[line])
}

// LineStartOffset returns the start offset of a 0-based line, or false when the
// line is outside the index.
func (e *FileEntry) LineStartOffset(line int) (int32, bool) {
	if line < 0 || line >= len(e.lineStarts) {
		return 0, false
	}
	return e.lineStarts[line], true
}

// MaxOffset returns the sentinel (total accounted length) or UndefinedOffset
// for an empty entry.
func (e *FileEntry) MaxOffset() int32 {
	if e.Empty() {
		return UndefinedOffset
	}
	return e.lineStarts[len(e.lineStarts)-1]
}

// Position resolves offset to a Position in this file.
func (e *FileEntry) Position(offset int32) Position {
	return Position{File: e.Name, Line: e.LineNumber(offset), Column: e.ColumnNumber(offset)}
}

// SourceRange resolves a [begin, end) offset pair.
func (e *FileEntry) SourceRange(begin, end int32) Range {
	return Range{Start: e.Position(begin), End: e.Position(end)}
}
