// Command docqa is the entry point for the document question-answering
// service. It provides a CLI (via Cobra) for running the HTTP API, indexing
// local files, asking one-off questions and wiping the knowledge base.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docqa-go/cmd/docqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
