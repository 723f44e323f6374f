// Command factdb is a thin CLI over the connection/transaction core: open
// a store, transact data-notation text against it, and dump its datoms. Grounded in cmd/bd's cobra command tree (one file per
// subcommand, a root command wiring them together) but scoped to this
// core's narrow operation set rather than beads' full issue-tracker
// surface.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "factdb",
	Short: "Inspect and transact against a factbase store",
}

// fulltextPathFor derives the companion fulltext store's path from the
// main store's path by adding a "-fulltext" suffix before the ".db"
// extension (or appending "-fulltext.db" when there is none).
func fulltextPathFor(storePath string) string {
	if ext := ".db"; strings.HasSuffix(storePath, ext) {
		return strings.TrimSuffix(storePath, ext) + "-fulltext" + ext
	}
	return storePath + "-fulltext.db"
}

func main() {
	rootCmd.AddCommand(openCmd, transactCmd, dumpCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
