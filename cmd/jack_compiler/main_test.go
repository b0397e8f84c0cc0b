package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJackCompilerHandler(t *testing.T) {
	t.Run("compiles a small class to a matching .vm module", func(t *testing.T) {
		dir := t.TempDir()
		input := filepath.Join(dir, "Main.jack")

		source := strings.Join([]string{
			"class Main {",
			"    function int main() {",
			"        var int x;",
			"        let x = 1 + 2;",
			"        return x;",
			"    }",
			"}",
		}, "\n")
		assert.NoError(t, os.WriteFile(input, []byte(source), 0644))

		code := Handler([]string{input}, map[string]string{})
		assert.Equal(t, 0, code)

		content, err := os.ReadFile(filepath.Join(dir, "Main.vm"))
		assert.NoError(t, err)
		lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
		assert.Equal(t, "function Main.main 1", lines[0])
		assert.Contains(t, lines, "push constant 1")
		assert.Contains(t, lines, "push constant 2")
		assert.Contains(t, lines, "add")
		assert.Equal(t, "return", lines[len(lines)-1])
	})

	t.Run("a call into an undeclared class is reported during lowering, not crashed on", func(t *testing.T) {
		dir := t.TempDir()
		input := filepath.Join(dir, "Main.jack")

		source := strings.Join([]string{
			"class Main {",
			"    function void main() {",
			"        do Foo.bar();",
			"        return;",
			"    }",
			"}",
		}, "\n")
		assert.NoError(t, os.WriteFile(input, []byte(source), 0644))

		code := Handler([]string{input}, map[string]string{})
		assert.Equal(t, -1, code)
	})

	t.Run("missing input file is reported, not panicked", func(t *testing.T) {
		dir := t.TempDir()
		code := Handler([]string{filepath.Join(dir, "missing.jack")}, map[string]string{})
		assert.Equal(t, -1, code)
	})

	t.Run("one unreadable TU in a directory batch does not stop the others", func(t *testing.T) {
		dir := t.TempDir()
		good := strings.Join([]string{
			"class Good {",
			"    function int main() {",
			"        return 1;",
			"    }",
			"}",
		}, "\n")
		assert.NoError(t, os.WriteFile(filepath.Join(dir, "Good.jack"), []byte(good), 0644))
		// A dangling symlink has a '.jack' name the walk will pick up but can never be read.
		assert.NoError(t, os.Symlink(filepath.Join(dir, "does-not-exist"), filepath.Join(dir, "Bad.jack")))

		code := Handler([]string{dir}, map[string]string{})
		assert.Equal(t, -1, code)

		content, err := os.ReadFile(filepath.Join(dir, "Good.vm"))
		assert.NoError(t, err)
		assert.Contains(t, string(content), "function Good.main")
	})
}
