package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "friendmap",
		Short: "Gossip simulation of replicated friend maps",
		Long: `friendmap runs a set of replicas that each mutate a shared friend map
(name -> set of friends) and gossip their whole state to each other until
interrupted, then reports whether the replicas converged.`,
		SilenceUsage: true,
		RunE:         runSimulationCmd,
	}
	addRunFlags(rootCmd)

	rootCmd.AddCommand(
		newRunCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "friendmap version %s\n", version)
		},
	}
}
