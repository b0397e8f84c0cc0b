package vm

// ----------------------------------------------------------------------------
// General information

// This section contains some general information about the VM intermediate language.
//
// We declare a shared 'Operation' interface for every macro operation available for the
// language and we define some other useful top-level struct such as Program and Module.
// Is important to note that a VM program can be composed of multiple translation units
// that can be also referenced as file or modules or also classes.

// A VM Program is just a set of multiple modules/files keyed by module (file) name, in the
// VM spec each Jack class is translated to its own .vm file (just like Java .class file) that
// can be handled as its own translation unit during the compilation or lowering phases. The
// module name doubles as the namespace used to disambiguate 'static' segment locations and
// branch labels across files (see Lowerer).
type Program map[string]Module

// A VM Module is just a linear list of VM operations/instructions
type Module []Operation

// Used to put together all operation in the VM language (Memory, Arithmetic, ... ops).
type Operation interface{}

// ----------------------------------------------------------------------------
// Memory Op

// In memory representation of a Memory operation for the VM language.
//
// In the VM intermediate language there are only two possible memory operation on the stack.
// We could either push a new value taken from the specified segment location on the stack's
// top or take the stack's top and saves its value at the specified segment location.
type MemoryOp struct {
	Operation OperationType // The type of operation, either 'push' or 'pop'
	Segment   SegmentType   // The named memory segment to use (this, that, temp, ...)
	Offset    uint16        // The specific location/offset inside of the memory segment
}

type OperationType string // Enum to manage the operation allowed for a MemoryOp

const (
	Push OperationType = "push"
	Pop  OperationType = "pop"
)

type SegmentType string // Enum to manage the segment accessible for a MemoryOp

const (
	Temp     SegmentType = "temp"     // Real segment used to store intermediate computations
	Constant SegmentType = "constant" // Virtual segment used to access numeric constant

	Local    SegmentType = "local"    // Real segment used to store local function variables
	Static   SegmentType = "static"   // Real segment used to store shared/static variables
	Argument SegmentType = "argument" // Real segment used to store function's argument

	This    SegmentType = "this"    // Virtual segment used to point to a specific memory location
	That    SegmentType = "that"    // Virtual segment used to point to a specific memory location
	Pointer SegmentType = "pointer" // Real segment w/ 2 location used to set the 'this' and 'that' pointers
)

// ----------------------------------------------------------------------------
// Arithmetic Op

// In memory representation of a Arithmetic operation for the VM language.
//
// In the VM intermediate language there are just a handful of operation available.
// In particular each operation acts directly on the top of the stack, of course we have both unary
// and binary operation, the specific management of each op will be handled in the codegen phase.
type ArithmeticOp struct{ Operation ArithOpType }

type ArithOpType string // Enum to manage the operation allowed for an ArithmeticOp

const (
	Eq ArithOpType = "eq" // Comparison operations
	Gt ArithOpType = "gt"
	Lt ArithOpType = "lt"

	Add ArithOpType = "add" // Arithmetic operations
	Sub ArithOpType = "sub"
	Neg ArithOpType = "neg"

	Not ArithOpType = "not" // Bitwise operations
	And ArithOpType = "and"
	Or  ArithOpType = "or"

	Shl ArithOpType = "shl" // Nand2Tetris shift extension, lowered to the CPU's native M<</M>> comps
	Shr ArithOpType = "shr"
)

// ----------------------------------------------------------------------------
// Label Decl / Branching Ops

// In memory representation of a label declaration, marks a location in the module that
// can be the target of a goto/if-goto operation. Unique only within its own module: the
// lowering phase namespaces it with the module name to avoid collisions across files.
type LabelDecl struct{ Name string }

type JumpType string // Enum to manage the kind of jump allowed for a GotoOp

const (
	Unconditional JumpType = "goto"    // Always transfers control to 'Label'
	Conditional   JumpType = "if-goto" // Transfers control to 'Label' iff the popped stack top is non-zero
)

// In memory representation of a goto/if-goto operation.
type GotoOp struct {
	Jump  JumpType // Whether the jump is unconditional ('goto') or conditional ('if-goto')
	Label string   // The target label's identifier
}

// ----------------------------------------------------------------------------
// Function Ops

// In memory representation of a function declaration/entry point.
type FuncDecl struct {
	Name   string // The fully qualified function name (e.g. 'Math.multiply')
	NLocal uint8  // The number of local variables the callee allocates on entry
}

// In memory representation of a function call.
type FuncCallOp struct {
	Name  string // The fully qualified function name being invoked
	NArgs uint8  // The number of arguments already pushed onto the stack for this call
}

// In memory representation of a function return statement. Carries no data: the callee's
// return value is expected to already be on top of the stack when this operation executes.
type ReturnOp struct{}
