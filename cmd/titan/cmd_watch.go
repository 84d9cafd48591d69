package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flowtitan/flowtitan/internal/cliview"
	"github.com/flowtitan/flowtitan/internal/plandir"
)

var watchCmd = &cobra.Command{
	Use:   "watch <plan-directory>",
	Short: "Recompile every .dsl plan in a directory as it changes",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	w, err := plandir.New(args[0])
	if err != nil {
		return fmt.Errorf("watch %s: %w", args[0], err)
	}
	w.OnChange = func(r plandir.CompileResult) {
		if r.Err != nil {
			fmt.Println(cliview.Error.Render(r.Path + ": " + r.Err.Error()))
			return
		}
		fmt.Println(cliview.OK.Render(r.Path+" -> "+r.Hash[:12]) + cliview.Muted.Render(" recompiled"))
	}
	w.Start()
	defer w.Stop()

	fmt.Println(cliview.Title.Render("watching " + args[0]))
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}
