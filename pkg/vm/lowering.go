package vm

import (
	"fmt"
	"sort"

	"github.com/wolfo1/nand2tetris/pkg/asm"
	"github.com/wolfo1/nand2tetris/pkg/utils"
)

// ----------------------------------------------------------------------------
// VM Lowerer

// The Lowerer takes a 'vm.Program' (potentially many modules/files) and produces a single
// flattened 'asm.Program' counterpart, exactly like a linker would: every module is lowered
// in turn and the results concatenated in one contiguous instruction stream, since the Hack
// platform has no notion of separately addressable translation units.
//
// Two concerns only the Lowerer can resolve because they span the whole program rather than
// a single module: namespacing (a bare 'static 3' or 'label LOOP' means something different
// in every file, so both get prefixed with the owning module's name) and the monotonic
// counters used to generate comparison/return-address labels, which must stay unique across
// every module lowered by this Lowerer, not just within one.
type Lowerer struct {
	program utils.OrderedMap[string, Module] // The modules to lower, keyed and ordered by file name

	module string // The name of the module currently being lowered, used to namespace labels/statics

	cmpCounter  uint // Monotonic counter for eq/gt/lt comparison labels, shared across every module
	callCounter uint // Monotonic counter for call return-address labels, shared across every module
}

// Initializes and returns to the caller a brand new 'Lowerer' struct.
// Requires the argument Program to be not nil nor empty.
func NewLowerer(p Program) Lowerer {
	// Same reasoning as jack.Lowerer: Go's map iteration order is randomized, and the label
	// counters above are shared mutable state threaded through the iteration, so without a
	// fixed module order the same input program could lower to a different (if equivalent)
	// output on every run. Sorting by module name first gives reproducible builds.
	modules := []utils.MapEntry[string, Module]{}
	for name, module := range p {
		modules = append(modules, utils.MapEntry[string, Module]{Key: name, Value: module})
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Key < modules[j].Key })

	return Lowerer{program: utils.NewOrderedMapFromList(modules)}
}

// Triggers the lowering process. It iterates module by module and then operation by operation,
// flattening every module's lowered instructions into a single 'asm.Program'. Does NOT include
// the bootstrap sequence (SP=256, call Sys.init): that's the caller's responsibility, since
// whether to emit it at all depends on how many modules are being translated together, not on
// anything the Lowerer itself can decide. See 'Lowerer.Bootstrap'.
func (l *Lowerer) Lowerer() (asm.Program, error) {
	program := asm.Program{}
	if l.program.Size() == 0 {
		return nil, fmt.Errorf("the given 'program' is empty or nil")
	}

	for name, module := range l.program.Entries() {
		l.module = name

		for _, op := range module {
			instructions, err := l.HandleOperation(op)
			if err != nil {
				return nil, fmt.Errorf("error handling lowering of module '%s': %w", name, err)
			}
			program = append(program, instructions...)
		}
	}

	return program, nil
}

// Bootstrap produces the standard Hack bootstrap sequence: initializes the Stack Pointer to
// the conventional base address (256) and calls 'Sys.init' with the usual calling convention
// (as opposed to a bare jump, since 'Sys.init' is an ordinary VM function and still expects
// LCL/ARG/THIS/THAT to be pushed/restored like any other callee). Shares this Lowerer's
// 'callCounter' so the synthesized return label can never collide with a real call lowered
// later by the same Lowerer.
func (l *Lowerer) Bootstrap() []asm.Instruction {
	instructions := []asm.Instruction{
		asm.AInstruction{Location: "256"},
		asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}
	return append(instructions, l.handleCall(FuncCallOp{Name: "Sys.init", NArgs: 0})...)
}

// Specialized function to convert any 'vm.Operation' node to a list of 'asm.Instruction'.
func (l *Lowerer) HandleOperation(op Operation) ([]asm.Instruction, error) {
	switch tOp := op.(type) {
	case MemoryOp:
		return l.handleMemoryOp(tOp)
	case ArithmeticOp:
		return l.handleArithmeticOp(tOp)
	case LabelDecl:
		return []asm.Instruction{asm.LabelDecl{Name: l.module + "." + tOp.Name}}, nil
	case GotoOp:
		return l.handleGotoOp(tOp), nil
	case FuncDecl:
		return l.handleFuncDecl(tOp), nil
	case FuncCallOp:
		return l.handleCall(tOp), nil
	case ReturnOp:
		return l.handleReturn(), nil
	default:
		return nil, fmt.Errorf("unrecognized operation '%T'", op)
	}
}

// ----------------------------------------------------------------------------
// Shared helper sequences

// Common tail shared by every 'push' operation: stores D at the stack's current top and
// advances the Stack Pointer. Mirrors the PUSH_CMD constant of the reference implementation.
func pushD() []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M+1"},
	}
}

// Common tail shared by every 'pop' operation whose target address can't be computed in a
// single A-instruction: stashes the already-computed target address (in D) into R13, pops
// the stack's top into D, then writes it through R13. Mirrors the reference's POP_CMD.
func popThroughR13() []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M-1"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}
}

// segmentPointer maps a segment that's accessed through an indirection (base + offset) to the
// Hack built-in symbol holding its base address. 'constant', 'static', 'temp' and 'pointer'
// aren't here: they're resolved directly (no indirection) by 'directLocation'.
var segmentPointer = map[SegmentType]string{
	Local:    "LCL",
	Argument: "ARG",
	This:     "THIS",
	That:     "THAT",
}

// ----------------------------------------------------------------------------
// Memory Op

func (l *Lowerer) handleMemoryOp(op MemoryOp) ([]asm.Instruction, error) {
	if op.Operation == Push {
		return l.handlePush(op)
	}
	return l.handlePop(op)
}

func (l *Lowerer) handlePush(op MemoryOp) ([]asm.Instruction, error) {
	switch op.Segment {
	case Constant:
		return append([]asm.Instruction{
			asm.AInstruction{Location: fmt.Sprint(op.Offset)},
			asm.CInstruction{Dest: "D", Comp: "A"},
		}, pushD()...), nil

	case Static, Temp, Pointer:
		location, err := l.directLocation(op.Segment, op.Offset)
		if err != nil {
			return nil, err
		}
		return append([]asm.Instruction{
			asm.AInstruction{Location: location},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, pushD()...), nil

	case Local, Argument, This, That:
		return append([]asm.Instruction{
			asm.AInstruction{Location: fmt.Sprint(op.Offset)},
			asm.CInstruction{Dest: "D", Comp: "A"},
			asm.AInstruction{Location: segmentPointer[op.Segment]},
			asm.CInstruction{Dest: "A", Comp: "D+M"},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, pushD()...), nil

	default:
		return nil, fmt.Errorf("unrecognized segment '%s' for push operation", op.Segment)
	}
}

func (l *Lowerer) handlePop(op MemoryOp) ([]asm.Instruction, error) {
	switch op.Segment {
	case Static:
		location, err := l.directLocation(op.Segment, op.Offset)
		if err != nil {
			return nil, err
		}
		return []asm.Instruction{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "M", Comp: "M-1"},
			asm.CInstruction{Dest: "A", Comp: "M"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: location},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}, nil

	case Temp, Pointer:
		location, err := l.directLocation(op.Segment, op.Offset)
		if err != nil {
			return nil, err
		}
		return append([]asm.Instruction{
			asm.AInstruction{Location: location},
			asm.CInstruction{Dest: "D", Comp: "A"},
		}, popThroughR13()...), nil

	case Local, Argument, This, That:
		return append([]asm.Instruction{
			asm.AInstruction{Location: fmt.Sprint(op.Offset)},
			asm.CInstruction{Dest: "D", Comp: "A"},
			asm.AInstruction{Location: segmentPointer[op.Segment]},
			asm.CInstruction{Dest: "D", Comp: "D+M"},
		}, popThroughR13()...), nil

	default:
		return nil, fmt.Errorf("unrecognized segment '%s' for pop operation", op.Segment)
	}
}

// directLocation resolves a segment accessed w/o indirection (static, temp, pointer) to the
// literal address string an A-instruction should carry: 'static' is namespaced per-module and
// left for the asm->hack Lowerer to allocate as an ordinary variable, 'temp'/'pointer' are raw
// RAM offsets fixed by the Hack memory map (temp = 5..12, pointer = 3..4).
func (l *Lowerer) directLocation(segment SegmentType, offset uint16) (string, error) {
	switch segment {
	case Static:
		return fmt.Sprintf("%s.%d", l.module, offset), nil
	case Temp:
		return fmt.Sprint(5 + offset), nil
	case Pointer:
		return fmt.Sprint(3 + offset), nil
	default:
		return "", fmt.Errorf("segment '%s' has no direct location", segment)
	}
}

// ----------------------------------------------------------------------------
// Arithmetic Op

func (l *Lowerer) handleArithmeticOp(op ArithmeticOp) ([]asm.Instruction, error) {
	switch op.Operation {
	case Add, Sub:
		comp := "D+M"
		if op.Operation == Sub {
			comp = "M-D"
		}
		return []asm.Instruction{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "M", Comp: "M-1"},
			asm.CInstruction{Dest: "A", Comp: "M"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "M", Comp: "M-1"},
			asm.CInstruction{Dest: "A", Comp: "M"},
			asm.CInstruction{Dest: "M", Comp: comp},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "M", Comp: "M+1"},
		}, nil

	case And, Or:
		comp := "D&M"
		if op.Operation == Or {
			comp = "D|M"
		}
		return []asm.Instruction{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "M", Comp: "M-1"},
			asm.CInstruction{Dest: "A", Comp: "M"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: comp},
		}, nil

	case Neg, Not, Shl, Shr:
		comp := map[ArithOpType]string{Neg: "-M", Not: "!M", Shl: "M<<", Shr: "M>>"}[op.Operation]
		return []asm.Instruction{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: comp},
		}, nil

	case Eq, Gt, Lt:
		return l.handleComparison(op.Operation), nil

	default:
		return nil, fmt.Errorf("unrecognized arithmetic op '%s'", op.Operation)
	}
}

// handleComparison lowers the sign-aware eq/gt/lt branch sequence. A plain 'D = x - y' would
// overflow (and so give the wrong sign) whenever x and y straddle zero with a gap wider than
// what fits back into 16 bits, so gt/lt peek the two operands' signs first and short-circuit
// whenever they differ, before ever computing the subtraction; eq never takes this shortcut (a
// true result requires x == y, so differing signs always just mean false) and always falls
// through to the subtract-and-compare tail.
func (l *Lowerer) handleComparison(op ArithOpType) []asm.Instruction {
	label := fmt.Sprintf(".%s.%d", l.module, l.cmpCounter)
	l.cmpCounter++

	negy, posy, tail := "negy"+label, "posy"+label, "tail"+label
	trueL, falseL, cont := "true"+label, "false"+label, "cont"+label
	jump := map[ArithOpType]string{Eq: "JEQ", Gt: "JGT", Lt: "JLT"}[op]

	instructions := []asm.Instruction{}
	if op != Eq {
		// Peek y's sign (stack top) and branch to the handler for that sign.
		instructions = append(instructions,
			asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M-1"}, asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: negy}, asm.CInstruction{Comp: "D", Jump: "JLT"},
			asm.AInstruction{Location: posy}, asm.CInstruction{Comp: "D", Jump: "JGE"},
		)
		// y is negative: x >= 0 means 'x > y' holds and 'x < y' can't.
		instructions = append(instructions,
			asm.LabelDecl{Name: negy},
			asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M-1"}, asm.CInstruction{Dest: "A", Comp: "A-1"}, asm.CInstruction{Dest: "D", Comp: "M"},
		)
		if op == Gt {
			instructions = append(instructions, asm.AInstruction{Location: trueL}, asm.CInstruction{Comp: "D", Jump: "JGE"})
		} else {
			instructions = append(instructions, asm.AInstruction{Location: falseL}, asm.CInstruction{Comp: "D", Jump: "JGE"})
		}
		// x is negative too (same sign as y): not decided by sign alone, fall into the
		// subtract-and-compare tail instead of falling through into the 'posy' handler.
		instructions = append(instructions, asm.AInstruction{Location: tail}, asm.CInstruction{Comp: "0", Jump: "JMP"})
		// y is non-negative: x < 0 means 'x < y' holds and 'x > y' can't.
		instructions = append(instructions,
			asm.LabelDecl{Name: posy},
			asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M-1"}, asm.CInstruction{Dest: "A", Comp: "A-1"}, asm.CInstruction{Dest: "D", Comp: "M"},
		)
		if op == Gt {
			instructions = append(instructions, asm.AInstruction{Location: falseL}, asm.CInstruction{Comp: "D", Jump: "JLT"})
		} else {
			instructions = append(instructions, asm.AInstruction{Location: trueL}, asm.CInstruction{Comp: "D", Jump: "JLT"})
		}
	}

	// Signs match (or op is 'eq'): safe to subtract, then compare the result against zero.
	instructions = append(instructions,
		asm.LabelDecl{Name: tail},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M-1"}, asm.CInstruction{Dest: "D", Comp: "M"}, asm.CInstruction{Dest: "A", Comp: "A-1"}, asm.CInstruction{Dest: "D", Comp: "M-D"},
		asm.AInstruction{Location: trueL}, asm.CInstruction{Comp: "D", Jump: jump},
		// False path: both operands consumed, push a 0 result.
		asm.LabelDecl{Name: falseL},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "M-1"}, asm.CInstruction{Dest: "A", Comp: "M-1"}, asm.CInstruction{Dest: "M", Comp: "0"},
		asm.AInstruction{Location: cont}, asm.CInstruction{Comp: "0", Jump: "JMP"},
		// True path: both operands consumed, push a -1 (all bits set) result.
		asm.LabelDecl{Name: trueL},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "M-1"}, asm.CInstruction{Dest: "A", Comp: "M-1"}, asm.CInstruction{Dest: "M", Comp: "-1"},
		asm.LabelDecl{Name: cont},
	)

	return instructions
}

// ----------------------------------------------------------------------------
// Goto Op

func (l *Lowerer) handleGotoOp(op GotoOp) []asm.Instruction {
	label := l.module + "." + op.Label

	if op.Jump == Unconditional {
		return []asm.Instruction{asm.AInstruction{Location: label}, asm.CInstruction{Comp: "0", Jump: "JMP"}}
	}
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M-1"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: label},
		asm.CInstruction{Comp: "D", Jump: "JNE"},
	}
}

// ----------------------------------------------------------------------------
// Function Ops

// handleFuncDecl zero-initializes the callee's local variables with a small runtime loop
// (rather than unrolling NLocal 'push constant 0' sequences): mirrors the reference
// implementation and keeps the emitted code size independent of how many locals a function
// happens to declare.
func (l *Lowerer) handleFuncDecl(op FuncDecl) []asm.Instruction {
	startLabel, argsLabel := op.Name+"$Start", op.Name+"$Args"

	return []asm.Instruction{
		asm.LabelDecl{Name: op.Name},
		asm.AInstruction{Location: fmt.Sprint(op.NLocal)}, asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: startLabel}, asm.CInstruction{Comp: "D", Jump: "JEQ"},
		asm.LabelDecl{Name: argsLabel},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Dest: "M", Comp: "0"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "M+1"},
		asm.CInstruction{Dest: "D", Comp: "D-1"},
		asm.AInstruction{Location: argsLabel}, asm.CInstruction{Comp: "D", Jump: "JGT"},
		asm.LabelDecl{Name: startLabel},
	}
}

// handleCall implements the standard Hack calling convention: push a fresh return address and
// the caller's LCL/ARG/THIS/THAT, reposition ARG/LCL for the callee, then jump. The return
// label is disambiguated by this Lowerer's shared 'callCounter' so that two calls to the same
// function anywhere in the program never collide.
func (l *Lowerer) handleCall(op FuncCallOp) []asm.Instruction {
	returnLabel := fmt.Sprintf("%s$ret.%d", op.Name, l.callCounter)
	l.callCounter++

	pushSegment := func(name string) []asm.Instruction {
		return append([]asm.Instruction{asm.AInstruction{Location: name}, asm.CInstruction{Dest: "D", Comp: "M"}}, pushD()...)
	}

	instructions := []asm.Instruction{asm.AInstruction{Location: returnLabel}, asm.CInstruction{Dest: "D", Comp: "A"}}
	instructions = append(instructions, pushD()...)
	instructions = append(instructions, pushSegment("LCL")...)
	instructions = append(instructions, pushSegment("ARG")...)
	instructions = append(instructions, pushSegment("THIS")...)
	instructions = append(instructions, pushSegment("THAT")...)
	instructions = append(instructions,
		// ARG = SP - 5 - NArgs
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "5"}, asm.CInstruction{Dest: "D", Comp: "D-A"},
		asm.AInstruction{Location: fmt.Sprint(op.NArgs)}, asm.CInstruction{Dest: "D", Comp: "D-A"},
		asm.AInstruction{Location: "ARG"}, asm.CInstruction{Dest: "M", Comp: "D"},
		// LCL = SP
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "LCL"}, asm.CInstruction{Dest: "M", Comp: "D"},
		// goto callee
		asm.AInstruction{Location: op.Name}, asm.CInstruction{Comp: "0", Jump: "JMP"},
		asm.LabelDecl{Name: returnLabel},
	)
	return instructions
}

// handleReturn implements the standard Hack return convention: stashes the caller's frame
// pointer (R14) and the return address (R15) before anything on the stack is disturbed (since
// a 0-argument callee's frame and the caller's ARG segment can overlap), writes the return
// value through ARG (the caller's expected slot), restores SP/THAT/THIS/ARG/LCL by walking the
// frame pointer back down, then jumps to the stashed return address.
func (l *Lowerer) handleReturn() []asm.Instruction {
	restore := func(segment string) []asm.Instruction {
		return []asm.Instruction{
			asm.AInstruction{Location: "R14"}, asm.CInstruction{Dest: "AM", Comp: "M-1"}, asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: segment}, asm.CInstruction{Dest: "M", Comp: "D"},
		}
	}

	instructions := []asm.Instruction{
		// R14 (endFrame) = LCL
		asm.AInstruction{Location: "LCL"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R14"}, asm.CInstruction{Dest: "M", Comp: "D"},
		// R15 (retAddr) = *(endFrame - 5)
		asm.AInstruction{Location: "5"}, asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "R14"}, asm.CInstruction{Dest: "A", Comp: "M-D"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R15"}, asm.CInstruction{Dest: "M", Comp: "D"},
		// *ARG = pop()
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "M-1"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "ARG"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Dest: "M", Comp: "D"},
		// SP = ARG + 1
		asm.AInstruction{Location: "ARG"}, asm.CInstruction{Dest: "D", Comp: "M+1"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "D"},
	}
	instructions = append(instructions, restore("THAT")...)
	instructions = append(instructions, restore("THIS")...)
	instructions = append(instructions, restore("ARG")...)
	instructions = append(instructions, restore("LCL")...)
	instructions = append(instructions,
		asm.AInstruction{Location: "R15"}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Comp: "0", Jump: "JMP"},
	)
	return instructions
}
