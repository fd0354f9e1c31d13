package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "sqlworker",
		Short:        "Asynchronous database execution engine",
		SilenceUsage: true,
	}
	root.AddCommand(RunServeCommand(), RunExecCommand(), RunStressCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
