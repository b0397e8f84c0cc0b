package jack

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed stdlib.json
var content string

// StandardLibraryABI describes the signature (name + kind) of every subroutine exposed by
// the nand2tetris OS classes (Math, String, Array, Output, Screen, Keyboard, Memory, Sys),
// keyed by class name and then by subroutine name. It carries no statement bodies: these
// classes are never compiled, they're only consulted so the lowerer can resolve calls into
// them without the source actually being present.
var StandardLibraryABI = map[string]map[string]Subroutine{}

func init() {
	if err := json.Unmarshal([]byte(content), &StandardLibraryABI); err != nil {
		panic(fmt.Sprintf("malformed embedded stdlib.json: %s", err))
	}
}
