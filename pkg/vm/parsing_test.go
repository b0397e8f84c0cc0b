package vm_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfo1/nand2tetris/pkg/vm"
)

func TestParseMemoryOps(t *testing.T) {
	module, err := vm.NewParser(strings.NewReader("push constant 7\npop local 2\n")).Parse()
	assert.NoError(t, err)
	assert.Equal(t, vm.Module{
		vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 7},
		vm.MemoryOp{Operation: vm.Pop, Segment: vm.Local, Offset: 2},
	}, module)
}

func TestParseArithmeticOps(t *testing.T) {
	module, err := vm.NewParser(strings.NewReader("add\nshl\nshr\n")).Parse()
	assert.NoError(t, err)
	assert.Equal(t, vm.Module{
		vm.ArithmeticOp{Operation: vm.Add},
		vm.ArithmeticOp{Operation: vm.Shl},
		vm.ArithmeticOp{Operation: vm.Shr},
	}, module)
}

func TestParseBranching(t *testing.T) {
	module, err := vm.NewParser(strings.NewReader("label LOOP\nif-goto LOOP\ngoto END\nlabel END\n")).Parse()
	assert.NoError(t, err)
	assert.Equal(t, vm.Module{
		vm.LabelDecl{Name: "LOOP"},
		vm.GotoOp{Jump: vm.Conditional, Label: "LOOP"},
		vm.GotoOp{Jump: vm.Unconditional, Label: "END"},
		vm.LabelDecl{Name: "END"},
	}, module)
}

func TestParseFunctionProtocol(t *testing.T) {
	module, err := vm.NewParser(strings.NewReader("function Math.multiply 2\ncall Math.multiply 2\nreturn\n")).Parse()
	assert.NoError(t, err)
	assert.Equal(t, vm.Module{
		vm.FuncDecl{Name: "Math.multiply", NLocal: 2},
		vm.FuncCallOp{Name: "Math.multiply", NArgs: 2},
		vm.ReturnOp{},
	}, module)
}

func TestParseCommentsAreSkipped(t *testing.T) {
	module, err := vm.NewParser(strings.NewReader("// a leading comment\npush constant 1 // trailing too\n")).Parse()
	assert.NoError(t, err)
	assert.Equal(t, vm.Module{vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 1}}, module)
}
