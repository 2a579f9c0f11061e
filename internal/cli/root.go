// Package cli implements forecastctl, the command-line client of the forecast service.
package cli

import (
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// DefaultServer is used when neither --server nor FORECAST_SERVER is set.
const DefaultServer = "http://localhost:8090"

type app struct {
	server  string
	output  string
	timeout time.Duration
	noColor bool
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

// NewRootCommand builds forecastctl wired to the process stdio.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithIO(os.Stdin, os.Stdout, os.Stderr)
}

// NewRootCommandWithIO builds forecastctl with explicit streams.
func NewRootCommandWithIO(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{stdin: in, stdout: out, stderr: errOut}

	server := os.Getenv("FORECAST_SERVER")
	if server == "" {
		server = DefaultServer
	}

	cmd := &cobra.Command{
		Use:           "forecastctl",
		Short:         "Query and feed the kubilitics forecast service",
		Long:          "forecastctl requests predictive analytics reports, ingests historical records and lists forecast domains.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVar(&a.server, "server", server, "forecast service base URL (env FORECAST_SERVER)")
	cmd.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "output format: table|json|yaml")
	cmd.PersistentFlags().DurationVar(&a.timeout, "timeout", 60*time.Second, "request timeout")
	cmd.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(
		newReportCmd(a),
		newReportsCmd(a),
		newIngestCmd(a),
		newDomainsCmd(a),
	)
	return cmd
}

func (a *app) client() *Client {
	return NewClient(a.server, a.timeout)
}
