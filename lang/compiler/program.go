package compiler

// A Program is the unit of compilation: the top-level function plus every
// other function compiled alongside it, the pool of constants and names they
// share, and the modules they load.
type Program struct {
	Loads     []Binding // modules to load, referenced by LOAD
	Names     []string  // names referenced by ATTR/SETFIELD/PREDECLARED/UNIVERSAL
	Constants []any     // int64, float64 or string

	Toplevel  *Funcode   // module toplevel function
	Functions []*Funcode // all other functions, flattened, referenced by MAKEFUNC index

	// Filename is the source filename this program was compiled from, if known.
	Filename string

	// Version is the compiler.Version in effect when this program was
	// produced; loaders may refuse to run a program compiled by an
	// incompatible version.
	Version int
}
