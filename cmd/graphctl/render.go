package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/BaSui01/agentgraph/graph/render"
	"github.com/BaSui01/agentgraph/internal/demo"
)

// renderFormats 支持的输出格式
var renderFormats = []string{"mermaid", "dot", "svg", "json", "yaml"}

// runRender 打印演示图拓扑，不需要配置与存储
func runRender(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	name := fs.String("graph", demo.SupportRouterName, "Graph name ("+strings.Join(demo.Names, ", ")+")")
	format := fs.String("format", "mermaid", "Output format ("+strings.Join(renderFormats, ", ")+")")
	if err := fs.Parse(args); err != nil {
		return err
	}

	runtimes, err := demo.Runtimes(0)
	if err != nil {
		return err
	}
	rt, err := demo.Lookup(runtimes, *name)
	if err != nil {
		return err
	}
	topo := rt.Topology()

	var body []byte
	switch *format {
	case "mermaid":
		body = []byte(topo.Mermaid())
	case "dot":
		body = []byte(topo.DOT())
	case "json":
		body, err = topo.JSON()
	case "yaml":
		body, err = topo.YAML()
	case "svg":
		body, err = render.SVG(context.Background(), topo.DOT())
	default:
		return fmt.Errorf("unsupported format %q (%s)", *format, strings.Join(renderFormats, ", "))
	}
	if err != nil {
		return fmt.Errorf("render %s: %w", *name, err)
	}

	if _, err := out.Write(body); err != nil {
		return err
	}
	if len(body) > 0 && body[len(body)-1] != '\n' {
		_, err = io.WriteString(out, "\n")
	}
	return err
}
