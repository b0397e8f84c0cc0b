package hack

import (
	"fmt"
	"strconv"
)

// ----------------------------------------------------------------------------
// Disassembler

// Disassemble is the structural inverse of CodeGenerator.Generate: given a sequence
// of 16-bit Hack binary lines it recovers a Program of AInstruction/CInstruction values.
// Labels are never recovered (the binary form has already resolved them to raw addresses),
// so every AInstruction is reported with LocType Raw; this is enough to prove that
// assembling a disassembled program reproduces the exact same binary (spec's round-trip
// invariant only requires Assemble(Disassemble(b)) == b, not a label-accurate re-source).
func Disassemble(lines []string) (Program, error) {
	program := make(Program, 0, len(lines))

	for i, line := range lines {
		if len(line) != 16 {
			return nil, fmt.Errorf("line %d: expected 16 bit instruction, got %d bits", i, len(line))
		}

		inst, err := disassembleLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		program = append(program, inst)
	}

	return program, nil
}

func disassembleLine(line string) (Instruction, error) {
	if line[0] == '0' {
		address, err := strconv.ParseUint(line[1:], 2, 16)
		if err != nil {
			return nil, fmt.Errorf("malformed A instruction: %w", err)
		}
		return AInstruction{LocType: Raw, LocName: strconv.FormatUint(address, 10)}, nil
	}

	opcode, compBits, destBits, jumpBits := line[1:3], line[3:10], line[10:13], line[13:16]

	// '11' is the legacy arithmetic/logic/identity family, '01' is the nand2tetris shift
	// extension: the two tables reuse some of the same comp bit-codes, so the table must be chosen first.
	compTable := CompTable
	if opcode == "01" {
		compTable = ShiftCompTable
	}

	comp, err := lookupByBits(compTable, compBits)
	if err != nil {
		return nil, fmt.Errorf("unrecognized 'comp' bit-code '%s': %w", compBits, err)
	}
	dest, err := lookupByBits(DestTable, destBits)
	if err != nil {
		return nil, fmt.Errorf("unrecognized 'dest' bit-code '%s': %w", destBits, err)
	}
	jump, err := lookupByBits(JumpTable, jumpBits)
	if err != nil {
		return nil, fmt.Errorf("unrecognized 'jump' bit-code '%s': %w", jumpBits, err)
	}

	return CInstruction{Comp: comp, Dest: dest, Jump: jump}, nil
}

func lookupByBits(table map[string]uint16, bits string) (string, error) {
	value, err := strconv.ParseUint(bits, 2, 16)
	if err != nil {
		return "", err
	}
	for name, code := range table {
		if uint16(value) == code {
			return name, nil
		}
	}
	return "", fmt.Errorf("no entry for bit pattern '%s'", bits)
}
