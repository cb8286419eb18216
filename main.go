// main.go
package main

import (
	"github.com/xkilldash9x/wardrunner/cmd"
)

// main is the entry point for the wardrunner CLI.
func main() {
	cmd.Execute()
}
