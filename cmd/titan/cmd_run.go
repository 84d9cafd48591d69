package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowtitan/flowtitan/internal/cliview"
	"github.com/flowtitan/flowtitan/internal/compiler"
	"github.com/flowtitan/flowtitan/internal/dsl"
	"github.com/flowtitan/flowtitan/internal/events"
	"github.com/flowtitan/flowtitan/internal/exec"
	"github.com/flowtitan/flowtitan/internal/ids"
	"github.com/flowtitan/flowtitan/internal/negotiator"
	"github.com/flowtitan/flowtitan/internal/policy"
	"github.com/flowtitan/flowtitan/internal/registry"
)

var runCmd = &cobra.Command{
	Use:   "run <plan.dsl>",
	Short: "Compile and execute a single plan file",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	path := args[0]

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}

	root, err := dsl.Parse(string(source))
	if err != nil {
		fmt.Println(cliview.Error.Render("parse error: " + err.Error()))
		return err
	}
	if vr := dsl.Validate(root); !vr.OK() {
		for _, e := range vr.Errors {
			fmt.Println(cliview.Error.Render(fmt.Sprintf("line %d: %s", e.Line, e.Message)))
		}
		return fmt.Errorf("plan failed validation with %d error(s)", len(vr.Errors))
	}

	g, err := compiler.Compile(root)
	if err != nil {
		fmt.Println(cliview.Error.Render("compile error: " + err.Error()))
		return err
	}
	hash, _ := g.CanonicalHash()
	fmt.Println(cliview.Title.Render("compiled plan") + " " + cliview.Muted.Render(hash[:12]))

	reg := registry.New()
	pol := policy.New(nil, policy.Restrictive)
	neg := negotiator.New(reg, pol)
	bus := events.NewBus(int64(cfg.Queues.EventBusSize))
	defer bus.Shutdown()
	pool := exec.NewWorkerPool(int64(cfg.Exec.MaxWorkers), neg, reg)
	orch := exec.NewOrchestrator(pool, bus, 30*time.Second)

	planID := ids.NewPrefixed("plan")
	result := orch.ExecutePlan(context.Background(), ids.NewPrefixed("session"), planID, g, negotiator.CallerContext{Trust: policy.TrustHigh})

	renderResult(result)
	if result.Status != "completed" {
		return fmt.Errorf("plan %s: %s", result.Status, result.Error)
	}
	return nil
}

func renderResult(result exec.PlanResult) {
	style := cliview.OK
	if result.Status != "completed" {
		style = cliview.Error
	}
	fmt.Println(style.Render(fmt.Sprintf("%s in %s (%d nodes)", result.Status, result.Elapsed, len(result.Nodes))))
	for _, n := range result.Nodes {
		line := fmt.Sprintf("  %-24s %s", n.NodeID, n.Status)
		if n.Status == "error" {
			fmt.Println(cliview.Warn.Render(line + ": " + n.Error))
			continue
		}
		fmt.Println(cliview.Muted.Render(line))
	}
}
