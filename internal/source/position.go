package source

import "fmt"

// Position is a resolved 0-based line/column pair.
type Position struct {
	File   string
	Line   int
	Column int
}

// String renders the position 1-based, the way editors expect it.
func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line+1, p.Column+1)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line+1, p.Column+1)
}

// Range is a resolved half-open source range.
type Range struct {
	Start Position
	End   Position
}

func (r Range) String() string {
	if r.Start.Line == r.End.Line {
		return fmt.Sprintf("%s-%d", r.Start, r.End.Column+1)
	}
	return fmt.Sprintf("%s-%d:%d", r.Start, r.End.Line+1, r.End.Column+1)
}

// Index caches FileEntry values by file name for one compilation session.
type Index struct {
	entries map[string]*FileEntry
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]*FileEntry)}
}

// Entry returns the entry for name, reading the file on first use.
func (x *Index) Entry(name string) *FileEntry {
	if e, ok := x.entries[name]; ok {
		return e
	}
	e := NewFileEntry(name)
	x.entries[name] = e
	return e
}

// Add registers a prepared entry, replacing any previous one for the same name.
func (x *Index) Add(e *FileEntry) {
	x.entries[e.Name] = e
}
