package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowtitan/flowtitan/internal/cliview"
	"github.com/flowtitan/flowtitan/internal/events"
	"github.com/flowtitan/flowtitan/internal/reliability"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Start a throwaway supervisor and print its health table format",
	Long: `status demonstrates the health view a long-running titan process
would expose: it watches one no-op demo service briefly and renders
its circuit state the way an operator dashboard would.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	bus := events.NewBus(8)
	defer bus.Shutdown()

	sup := reliability.NewSupervisor(bus)
	sup.Watch("demo.perception", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}, reliability.WatchOptions{Restart: true, Timeout: 5 * time.Second})
	time.Sleep(20 * time.Millisecond)
	printHealth(sup)
	sup.StopAll()
	return nil
}

func printHealth(sup *reliability.Supervisor) {
	health := sup.Health()
	names := make([]string, 0, len(health))
	for n := range health {
		names = append(names, n)
	}
	sort.Strings(names)

	fmt.Println(cliview.Title.Render("service health"))
	for _, name := range names {
		h := health[name]
		glyph := cliview.StatusGlyph(h.Running, h.Dead, h.Failures)
		fmt.Printf("  %-24s %s\n", name, glyph)
	}
}
