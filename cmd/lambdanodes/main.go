package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/client"
	"github.com/rmax-ai/lambdanodes/pkg/mcp"
	"github.com/rmax-ai/lambdanodes/pkg/pipeline"
	"github.com/rmax-ai/lambdanodes/pkg/session"
)

var (
	Version   = "v1.0.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const usage = `Usage: lambdanodes [-endpoint URL] <command>

Commands:
  nodes list
  nodes get <id>
  nodes add <name> [-inputs a,b] [-outputs x] [-script file]
  nodes rm <id>
  pipeline validate <file.json> [-remote]
  pipeline submit <file.json> [-method GET] [-url /path]
  pipeline list
  mcp
  version
`

// errUsage makes run print the usage text and exit 2.
var errUsage = errors.New("usage")

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("lambdanodes", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	endpoint := global.String("endpoint", envOrDefault("LAMBDANODES_ENDPOINT", client.DefaultEndpoint), "daemon base URL")
	if err := global.Parse(args); err != nil {
		fmt.Fprint(stderr, usage)
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	c := client.NewClient(*endpoint)
	var err error
	switch rest[0] {
	case "nodes":
		err = runNodes(ctx, c, rest[1:], stdout)
	case "pipeline":
		err = runPipeline(ctx, c, rest[1:], stdout)
	case "mcp":
		err = mcp.NewServer(*endpoint).Serve()
	case "version":
		fmt.Fprintf(stdout, "lambdanodes %s (%s, %s)\n", Version, Commit, BuildTime)
	default:
		err = errUsage
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprint(stderr, usage)
		return 2
	case errors.Is(err, client.ErrNetworkFailure):
		fmt.Fprintf(stderr, "Error: %v\nIs lambdanodes-d running at %s?\n", err, *endpoint)
		return 1
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func runNodes(ctx context.Context, c *client.Client, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "list":
		defs, err := c.Catalog().List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tINPUTS\tOUTPUTS\tINTERNAL")
		for _, d := range defs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\n", d.ID, d.Name,
				strings.Join(d.Inputs, ","), strings.Join(d.Outputs, ","), d.IsInternal)
		}
		return tw.Flush()

	case "get":
		if len(args) != 2 {
			return errUsage
		}
		def, err := c.GetNode(ctx, args[1])
		if err != nil {
			return err
		}
		printNode(stdout, def)
		return nil

	case "add":
		if len(args) < 2 {
			return errUsage
		}
		fs := flag.NewFlagSet("nodes add", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		inputs := fs.String("inputs", "", "comma-separated input port names")
		outputs := fs.String("outputs", "", "comma-separated output port names")
		scriptPath := fs.String("script", "", "file holding the node script")
		if err := fs.Parse(args[2:]); err != nil {
			return errUsage
		}

		d := catalog.Draft{Name: args[1], Inputs: splitPorts(*inputs), Outputs: splitPorts(*outputs)}
		if *scriptPath != "" {
			data, err := os.ReadFile(*scriptPath)
			if err != nil {
				return fmt.Errorf("failed to read script: %w", err)
			}
			d.Script = string(data)
		}
		def, err := c.CreateNode(ctx, d)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Node created: %s\n", def.ID)
		return nil

	case "rm":
		if len(args) != 2 {
			return errUsage
		}
		if err := c.DeleteNode(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Node deleted: %s\n", args[1])
		return nil
	}
	return errUsage
}

func runPipeline(ctx context.Context, c *client.Client, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "list":
		recs, err := c.ListPipelines(ctx, client.Page{Limit: 100})
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tMETHOD\tURL")
		for _, r := range recs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Method, r.URL)
		}
		return tw.Flush()

	case "validate":
		if len(args) < 2 {
			return errUsage
		}
		fs := flag.NewFlagSet("pipeline validate", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		remote := fs.Bool("remote", false, "validate on the daemon")
		if err := fs.Parse(args[2:]); err != nil {
			return errUsage
		}

		sub, err := readSubmission(args[1])
		if err != nil {
			return err
		}
		var report pipeline.Report
		if *remote {
			report, err = c.ValidatePipeline(ctx, sub.Document)
			if err != nil {
				return err
			}
		} else {
			g, err := pipeline.Deserialize(sub.Document)
			if err != nil {
				return err
			}
			report = pipeline.Validate(g)
		}
		return printReport(stdout, report)

	case "submit":
		if len(args) < 2 {
			return errUsage
		}
		fs := flag.NewFlagSet("pipeline submit", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		method := fs.String("method", "", "trigger HTTP method (default GET)")
		url := fs.String("url", "", "trigger path")
		if err := fs.Parse(args[2:]); err != nil {
			return errUsage
		}

		sub, err := readSubmission(args[1])
		if err != nil {
			return err
		}
		trigger := sub.Trigger
		if *method != "" {
			trigger.Method = *method
		}
		if *url != "" {
			trigger.URL = *url
		}

		sess, err := session.Open(ctx, c.Catalog(), &sub.Document)
		if err != nil {
			return err
		}
		rec, err := sess.Submit(ctx, c, trigger)
		var vf *session.ValidationFailedError
		if errors.As(err, &vf) {
			_ = printReport(stdout, pipeline.Report{Violations: vf.Violations})
			return err
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Pipeline stored: %s\n", rec.ID)
		if rec.URL != "" {
			fmt.Fprintf(stdout, "Route: %s %s\n", rec.Method, rec.URL)
		}
		return nil
	}
	return errUsage
}

func readSubmission(path string) (pipeline.Submission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Submission{}, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	return pipeline.DecodeSubmission(data)
}

func printNode(w io.Writer, def catalog.NodeDefinition) {
	fmt.Fprintf(w, "ID:       %s\n", def.ID)
	fmt.Fprintf(w, "Name:     %s\n", def.Name)
	fmt.Fprintf(w, "Internal: %v\n", def.IsInternal)
	fmt.Fprintf(w, "Inputs:   %s\n", strings.Join(def.Inputs, ", "))
	fmt.Fprintf(w, "Outputs:  %s\n", strings.Join(def.Outputs, ", "))
	if def.Script != "" {
		fmt.Fprintf(w, "Script:\n%s\n", def.Script)
	}
}

// printReport returns a non-nil error when the report has violations.
func printReport(w io.Writer, report pipeline.Report) error {
	if len(report.Violations) == 0 {
		fmt.Fprintln(w, "OK")
		return nil
	}
	for _, v := range report.Violations {
		fmt.Fprintf(w, "%s: %s\n", v.Kind, v.Message)
	}
	return fmt.Errorf("%d violation(s)", len(report.Violations))
}

func splitPorts(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
