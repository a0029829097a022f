package metadata

// QualifiedNameKind tells how a qualified-name segment should be read.
type QualifiedNameKind uint8

const (
	QNameClass QualifiedNameKind = iota
	QNamePackage
	QNameLocal
)

// QualifiedNameProto is one segment of a qualified name. Parent is -1 for the
// root segment.
type QualifiedNameProto struct {
	Parent int32             `msgpack:"p"`
	Short  int32             `msgpack:"s"`
	Kind   QualifiedNameKind `msgpack:"k"`
}

// NameTables are the string and qualified-name tables of one payload.
type NameTables struct {
	Strings        []string             `msgpack:"strings"`
	QualifiedNames []QualifiedNameProto `msgpack:"qnames"`
}

// ValueKind enumerates annotation argument kinds.
type ValueKind uint8

const (
	ValueInt ValueKind = iota + 1
	ValueString
	ValueBool
	ValueClass
)

// ValueProto is an annotation argument value. String and Class are table
// indices.
type ValueProto struct {
	Kind   ValueKind `msgpack:"k"`
	Int    int64     `msgpack:"i,omitempty"`
	Bool   bool      `msgpack:"b,omitempty"`
	String int32     `msgpack:"s,omitempty"`
	Class  int32     `msgpack:"c,omitempty"`
}

// ArgumentProto is a named annotation argument.
type ArgumentProto struct {
	Name  int32      `msgpack:"n"`
	Value ValueProto `msgpack:"v"`
}

// AnnotationProto refers to the annotation class by qualified-name index.
type AnnotationProto struct {
	ID        int32           `msgpack:"id"`
	Arguments []ArgumentProto `msgpack:"args,omitempty"`
}

// FileProto holds the annotations of one source file. ID is omitted when it
// equals the file's position in PackagePayload.Files.
type FileProto struct {
	ID          *int32            `msgpack:"id,omitempty"`
	Annotations []AnnotationProto `msgpack:"annotations,omitempty"`
}

// DescriptorUniqID addresses a declaration's IR blob inside the archive.
type DescriptorUniqID struct {
	Index   int64 `msgpack:"i"`
	Local   bool  `msgpack:"l,omitempty"`
	Builtin bool  `msgpack:"b,omitempty"`
}

// DeclProto is one serialized declaration.
type DeclProto struct {
	Name    int32            `msgpack:"n"`
	Kind    DeclKind         `msgpack:"k"`
	Flags   DeclFlags        `msgpack:"f,omitempty"`
	Params  int32            `msgpack:"p,omitempty"`
	File    *int32           `msgpack:"file,omitempty"`
	UniqID  DescriptorUniqID `msgpack:"u"`
	Members []DeclProto      `msgpack:"m,omitempty"`
}

// PackagePayload is the serialized content of one package.
type PackagePayload struct {
	FqName string      `msgpack:"fq"`
	Names  NameTables  `msgpack:"names"`
	Files  []FileProto `msgpack:"files"`
	Decls  []DeclProto `msgpack:"decls"`
}

// HeaderFlagPreRelease marks metadata written by a pre-release compiler.
const HeaderFlagPreRelease int32 = 1

// Header is the module-level part of the metadata.
type Header struct {
	ModuleName     string            `msgpack:"module"`
	Names          NameTables        `msgpack:"names"`
	Annotations    []AnnotationProto `msgpack:"annotations,omitempty"`
	Flags          int32             `msgpack:"flags"`
	PackageFqNames []string          `msgpack:"packages"`
	Imported       []string          `msgpack:"imported,omitempty"`
}

// Envelope is the complete metadata file: header and packages encoded
// separately so a reader can decode only what it needs.
type Envelope struct {
	Version  Version  `msgpack:"version"`
	Header   []byte   `msgpack:"header"`
	Packages [][]byte `msgpack:"packages"`
}
