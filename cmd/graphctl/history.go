package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/graph"
	"github.com/BaSui01/agentgraph/graph/checkpoint/factory"
	"github.com/BaSui01/agentgraph/internal/demo"
)

// runHistory 打印线程的检查点历史（最旧在前），或列出全部线程
func runHistory(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	name := fs.String("graph", demo.HumanApprovalName, "Graph name ("+strings.Join(demo.Names, ", ")+")")
	thread := fs.String("thread", "", "Thread id; empty lists threads")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend, err := factory.New(ctx, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer backend.Close(context.WithoutCancel(ctx))

	runtimes, err := demo.Runtimes(0, graph.WithCheckpointer(backend.Store))
	if err != nil {
		return err
	}
	rt, err := demo.Lookup(runtimes, *name)
	if err != nil {
		return err
	}

	if *thread == "" {
		threads, err := rt.Threads(ctx)
		if err != nil {
			return err
		}
		for _, t := range threads {
			fmt.Fprintln(out, t)
		}
		return nil
	}

	history, err := rt.History(ctx, *thread)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSOURCE\tNEXT\tINTERRUPT\tCREATED\tSTATE")
	for _, s := range history {
		intr := "-"
		if s.Interrupt != nil {
			intr = s.Interrupt.Node + "/" + s.Interrupt.Phase
		}
		next := s.Next
		if next == "" {
			next = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			s.Step, s.Source, next, intr, s.CreatedAt.Format(time.RFC3339), s.State)
	}
	return tw.Flush()
}
