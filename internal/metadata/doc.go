// Package metadata serializes module descriptors into the library archive and
// reads them back as lazily populated package fragments.
//
// # Wire format
//
// The metadata file holds one msgpack Envelope: a version, the encoded Header
// (module name, module-level annotations, flags, package list, imported
// modules) and one encoded PackagePayload per package. Every payload carries
// its own name tables; annotations and declarations refer to strings and
// qualified names by index.
//
// # Files and annotations
//
// File-level annotations are stored per file, not per declaration.
// Declarations only record the id of their file. A file's id is written
// explicitly unless it equals the file's position in the payload, and readers
// must apply the same rule: explicit id if present, positional index
// otherwise. Getting the fallback wrong silently attaches annotations to the
// wrong file.
//
// Annotations of a file are deserialized the first time any declaration of
// that file asks for them and cached for the fragment's lifetime; concurrent
// readers share a single deserialization.
package metadata
