package cli

import (
	_ "embed"
	"fmt"
	"io"
)

//go:embed help.txt
var helpText string

func printHelp(w io.Writer) {
	fmt.Fprint(w, helpText)
}
