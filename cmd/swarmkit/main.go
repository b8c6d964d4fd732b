// Command swarmkit is the entrypoint for spec.md §6's external interface:
// load a workflow spec, wire the kernel, and drive it to completion. CLI
// argument parsing stays thin (spec.md's own non-goal) — this package only
// assembles components and hands off to internal/orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "swarmkit",
		Short: "Drive an agent swarm workflow to completion",
	}
	root.AddCommand(newRunCmd(), newResumeCmd())
	return root
}
