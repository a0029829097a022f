package lower

// Phase names.
const (
	DefaultArguments  = "default-arguments"
	LocalDeclarations = "local-declarations"
	ClosureConversion = "closure-conversion"
	FunctionTypes     = "function-types"
	Signatures        = "signatures"
)

// DefaultPhases returns the declared lowering order.
func DefaultPhases() []Phase {
	return []Phase{
		defaultArgumentsPhase(),
		localDeclarationsPhase(),
		closureConversionPhase(),
		functionTypesPhase(),
		signaturesPhase(),
	}
}

// ByName returns the default phase called name.
func ByName(name string) (Phase, bool) {
	for _, p := range DefaultPhases() {
		if p.Name == name {
			return p, true
		}
	}
	return Phase{}, false
}
