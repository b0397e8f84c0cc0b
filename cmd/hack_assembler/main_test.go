package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHackAssemblerHandler(t *testing.T) {
	t.Run("assembles a small program with a loop and a variable", func(t *testing.T) {
		dir := t.TempDir()
		input := filepath.Join(dir, "program.asm")
		output := filepath.Join(dir, "program.hack")

		source := strings.Join([]string{
			"@i",
			"M=0",
			"(LOOP)",
			"@i",
			"M=M+1",
			"D=M",
			"@16",
			"D=D-A",
			"@LOOP",
			"D;JLT",
			"@END",
			"0;JMP",
			"(END)",
		}, "\n")
		assert.NoError(t, os.WriteFile(input, []byte(source), 0644))

		code := Handler([]string{input, output}, map[string]string{})
		assert.Equal(t, 0, code)

		content, err := os.ReadFile(output)
		assert.NoError(t, err)
		lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
		assert.Len(t, lines, 11)
		for _, line := range lines {
			assert.Len(t, line, 16)
		}
		// 'i' is an undeclared label/variable, so it must be allocated starting at address 16.
		assert.Equal(t, "0000000000010000", lines[0])
	})

	t.Run("missing input file is reported, not panicked", func(t *testing.T) {
		dir := t.TempDir()
		code := Handler([]string{filepath.Join(dir, "missing.asm"), filepath.Join(dir, "out.hack")}, map[string]string{})
		assert.Equal(t, -1, code)
	})

	t.Run("unwritable output path is reported, not panicked", func(t *testing.T) {
		dir := t.TempDir()
		input := filepath.Join(dir, "program.asm")
		assert.NoError(t, os.WriteFile(input, []byte("@16\nD=A"), 0644))

		code := Handler([]string{input, filepath.Join(dir, "no-such-subdir", "out.hack")}, map[string]string{})
		assert.Equal(t, -1, code)
	})
}
