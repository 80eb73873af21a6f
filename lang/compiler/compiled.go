package compiler

import (
	"go/token"
	"sync"
)

// A Funcode is the code of a compiled function. Funcodes are serialized by
// lang/marshal's writeFuncdefBody and readFuncdefBody, which must be updated
// whenever this declaration is changed.
type Funcode struct {
	Prog                  *Program
	Pos                   token.Pos // position of def or lambda token
	Name                  string    // name of this function
	Source                string    // source filename, if known
	Code                  []byte    // the byte code
	pclinetab             []uint16  // mapping from pc to linenum
	Locals                []Binding // locals, parameters first
	Cells                 []int     // indices of Locals that require cells
	Freevars              []Binding // for tracing
	Defers                []Defer   // defer blocks, nested ones must come after the more general ones
	Catches               []Defer   // catch blocks, nested ones must come after the more general ones
	MaxStack              int
	NumParams             int
	NumKwonlyParams       int
	HasVarargs, HasKwargs bool

	// EnvIndices holds, for each captured environment this function's nested
	// closures may refer to, the index of that environment in the *enclosing*
	// function's own captured-environment vector. It is empty for functions
	// that capture nothing.
	EnvIndices []int

	// SourceMap holds one (start, end) source-offset pair per bytecode word,
	// when position tracking is enabled for this function.
	SourceMap []SourceSpan

	// -- transient state --

	lntOnce sync.Once
	lnt     []pclinecol // decoded line number table
}

// A SourceSpan is a (start, end) byte-offset pair into the function's source
// file, associated with one bytecode word.
type SourceSpan struct {
	Start, End int32
}

type pclinecol struct {
	pc        uint32
	line, col int32
}
