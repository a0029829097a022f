package diag

import "fmt"

type Code uint16

const (
	UnknownCode Code = 0

	// анализ (приходят из front end)
	AnaInfo            Code = 1000
	AnaUnresolved      Code = 1001
	AnaTypeMismatch    Code = 1002
	AnaDuplicate       Code = 1003
	AnaInvalidModifier Code = 1004
	AnaOther           Code = 1099

	// зависимости
	LibInfo            Code = 2000
	LibNotFound        Code = 2001
	LibIncompatible    Code = 2002
	LibPreRelease      Code = 2003
	LibManifestInvalid Code = 2004
	LibSelfImport      Code = 2005

	// запись архива
	ArcInfo        Code = 3000
	ArcOutputInUse Code = 3001
	ArcWriteFailed Code = 3002
)

var codeDescription = map[Code]string{
	UnknownCode:        "Unknown error",
	AnaInfo:            "Analysis information",
	AnaUnresolved:      "Unresolved reference",
	AnaTypeMismatch:    "Type mismatch",
	AnaDuplicate:       "Conflicting declarations",
	AnaInvalidModifier: "Modifier not allowed here",
	AnaOther:           "Analysis error",
	LibInfo:            "Library information",
	LibNotFound:        "Library not found",
	LibIncompatible:    "Incompatible library metadata",
	LibPreRelease:      "Pre-release library used by a release build",
	LibManifestInvalid: "Invalid library manifest",
	LibSelfImport:      "Module imports itself",
	ArcInfo:            "Archive information",
	ArcOutputInUse:     "Archive output directory is locked",
	ArcWriteFailed:     "Cannot write library archive",
}

// ID returns the stable identifier such as "ANA1001".
func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("ANA%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("LIB%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("ARC%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}

// ParseCode accepts either the numeric value or the ID form.
func ParseCode(s string) (Code, bool) {
	for c := range codeDescription {
		if c.ID() == s {
			return c, true
		}
	}
	var n uint16
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
		if _, ok := codeDescription[Code(n)]; ok {
			return Code(n), true
		}
	}
	return UnknownCode, false
}
