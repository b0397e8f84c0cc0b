package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/teris-io/cli"
	"github.com/wolfo1/nand2tetris/pkg/asm"
	"github.com/wolfo1/nand2tetris/pkg/vm"
)

var Description = strings.ReplaceAll(`
The VM Translator translates programs (composed of multiple modules/files) written in 
the VM language into Hack assembly code that can be further elaborated. The VM language
is a higher-level (bytecode'like) language tailored for use with the Hack computer arch.
`, "\n", " ")

var VmTranslator = cli.New(Description).
	// 'AsOptional()' allows to have more than one input .vm file
	WithArg(cli.NewArg("inputs", "The bytecode (.vm) file to be compiled").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("output", "The compiled binary output (.asm)").
		WithType(cli.TypeString)).
	WithOption(cli.NewOption("bootstrap", "Includes bootstrap code in the final .asm file").
		WithType(cli.TypeBool)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 || options["output"] == "" {
		fmt.Printf("ERROR: Not enough arguments provided, use --help\n")
		return -1
	}

	output, err := os.Create(options["output"])
	if err != nil {
		fmt.Printf("ERROR: Unable to open output file: %s\n", err)
		return -1
	}
	defer output.Close()

	// The first is the aggregation of all the Translation Units (TUs) found during the input walk
	// (just the paths), the second tracks whether any positional argument names a directory rather
	// than a lone file: that distinction decides whether bootstrap code is emitted automatically.
	TUs, directoryInput := []string{}, false

	for _, input := range args {
		filepath.Walk(input, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				if path == input {
					directoryInput = true
				}
				return nil // We recurse on dirs and ignore other filetypes
			}
			if filepath.Ext(path) != ".vm" {
				return nil
			}

			TUs = append(TUs, path)
			return nil
		})
	}

	// Allocates a 'vm.Program' struct to save all the parsed translation unit
	// (the .vm files) that will be parsed and lowered independently and then
	// sent to the codegen phases (that will create a monolithic compiled output).
	program, failed := vm.Program{}, false

	// For every file discovered by the walk above we do the following things. A failure on one
	// TU is reported but does not stop the others from being read and parsed: each file's parse
	// outcome is independent, only the final exit code reflects that something went wrong.
	for _, tu := range TUs {
		content, err := os.ReadFile(tu)
		if err != nil {
			fmt.Printf("ERROR: Unable to open input file '%s': %s\n", tu, err)
			failed = true
			continue
		}

		// Instantiate a parser for the Vm program
		parser := vm.NewParser(bytes.NewReader(content))
		// Removes root directory and file extension to use as module name
		filename, extension := path.Base(tu), path.Ext(tu)
		// Parses the input file content and extract an AST (as a 'vm.Module') from it.
		module, err := parser.Parse()
		if err != nil {
			fmt.Printf("ERROR: Unable to complete 'parsing' pass on '%s': %s\n", tu, err)
			failed = true
			continue
		}
		program[strings.TrimSuffix(filename, extension)] = module
	}

	if failed && len(program) == 0 {
		return -1
	}

	// Instantiate a lowerer to convert the program from Vm to Asm
	lowerer := vm.NewLowerer(program)

	// Bootstrap (SP=256; call Sys.init 0) is emitted automatically whenever the input spans more
	// than one module (a directory, or several files given explicitly), since that's the only
	// case where a single entry point needs to be chosen among many. '--bootstrap' overrides this
	// in either direction: '--bootstrap' (or any value other than 'false') forces it on even for a
	// single file, '--bootstrap=false' forces it off even for a directory.
	emitBootstrap := directoryInput || len(TUs) > 1
	if value, present := options["bootstrap"]; present {
		emitBootstrap = value != "false"
	}

	var asmProgram asm.Program
	if emitBootstrap {
		asmProgram = append(asmProgram, lowerer.Bootstrap()...)
	}

	// Lowers the vm.Program to an in-memory/IR representation of its Asm counterpart 'asm.Program'.
	body, err := lowerer.Lowerer()
	if err != nil {
		fmt.Printf("ERROR: Unable to complete 'lowering' pass: %s\n", err)
		return -1
	}
	asmProgram = append(asmProgram, body...)

	// Now, instantiates a code generator for the Asm (compiled) program
	codegen := asm.NewCodeGenerator(asmProgram)
	// Iterates over each instruction and spits out the relative textual representation.
	compiled, err := codegen.Generate()
	if err != nil {
		fmt.Printf("ERROR: Unable to complete 'codegen' pass: %s\n", err)
		return -1
	}

	for _, comp := range compiled {
		line := fmt.Sprintf("%s\n", comp)
		output.Write([]byte(line))
	}

	if failed {
		return -1
	}
	return 0
}

func main() { os.Exit(VmTranslator.Run(os.Args, os.Stdout)) }
