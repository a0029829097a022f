// Package frontend is the boundary to the analyzing front end.
//
// The front end is an external collaborator: it hands over an analyzed
// module (declarations with resolved references, offsets and diagnostics)
// serialized as TOML. Load reads that file, Translate turns it into an IR
// module against the session symbol table.
package frontend
