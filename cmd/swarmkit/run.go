package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	f := &kernelFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a new run from a workflow spec",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), f, false)
		},
	}
	addKernelFlags(cmd.Flags(), f)
	return cmd
}

func newResumeCmd() *cobra.Command {
	f := &kernelFlags{}
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a run from its last checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), f, true)
		},
	}
	addKernelFlags(cmd.Flags(), f)
	return cmd
}

// execute builds the kernel, optionally resumes from checkpoint, runs to
// completion, and translates the result into a process exit. A SIGINT/
// SIGTERM cancels the run's context, giving the in-flight wave up to
// shutdown_grace to finish through its own cooperative cancellation before
// this process exits uncleanly (spec.md §5 "Cancellation & shutdown").
func execute(parent context.Context, f *kernelFlags, resume bool) error {
	sigCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	k, err := buildKernel(sigCtx, f)
	if err != nil {
		return err
	}
	defer k.Close(context.Background())

	if resume {
		if err := k.orch.Resume(sigCtx); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		<-sigCtx.Done()
		select {
		case <-done:
		case <-time.After(k.cfg.ShutdownGrace):
			fmt.Fprintln(os.Stderr, "swarmkit: shutdown grace period elapsed; forcing exit")
			os.Exit(1)
		}
	}()

	result, err := k.orch.Run(sigCtx)
	close(done)
	if err != nil {
		return err
	}
	os.Exit(result.ExitCode)
	return nil
}
