package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "aa:", err)
		os.Exit(1)
	}
}

type globalOpts struct {
	server string
	uid    int
	pid    int
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}
	root := &cobra.Command{
		Use:           "aa",
		Short:         "Ability manager command line tool",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	server := os.Getenv("AA_SERVER")
	if server == "" {
		server = "http://localhost:8000"
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "ability manager address")
	root.PersistentFlags().IntVar(&opts.uid, "uid", 0, "caller uid")
	root.PersistentFlags().IntVar(&opts.pid, "pid", os.Getpid(), "caller pid")

	root.AddCommand(newStartCmd(opts))
	root.AddCommand(newStopServiceCmd(opts))
	root.AddCommand(newDumpCmd(opts, "dump", "/v1/dump"))
	root.AddCommand(newDumpCmd(opts, "dumpsys", "/v1/dumpsys"))
	root.AddCommand(newTopCmd(opts))
	root.AddCommand(newMissionsCmd(opts))
	root.AddCommand(newUserCmd(opts))
	root.AddCommand(newKillCmd(opts))
	return root
}
