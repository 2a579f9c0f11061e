package cli

// report.go: forecastctl report / reports.
//
// Commands:
//   forecastctl report --tenant acme --domains demand,capacity --horizon 14
//   forecastctl report --tenant acme --param capacityThreshold=0.8 -o json
//   forecastctl report --id <report-id>
//   forecastctl reports --tenant acme

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		tenant  string
		domains []string
		horizon int
		params  []string
		id      string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a predictive analytics report",
		Example: `  forecastctl report --tenant acme --domains demand,capacity --horizon 14
  forecastctl report --tenant acme --domains all --param noise=true --param seed=7 -o yaml
  forecastctl report --id 6f1c2d3e-...`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()

			var (
				report *analytics.Report
				err    error
			)
			if id != "" {
				report, err = a.client().GetReport(ctx, id)
			} else {
				if tenant == "" {
					return fmt.Errorf("--tenant is required")
				}
				parameters, perr := parseParams(params)
				if perr != nil {
					return perr
				}
				report, err = a.client().Report(ctx, analytics.Request{
					TenantID:   tenant,
					Domains:    domains,
					Horizon:    horizon,
					Parameters: parameters,
				})
			}
			if err != nil {
				return err
			}
			return a.render(report, func() { a.renderReport(report) })
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "tenant identifier")
	cmd.Flags().StringSliceVarP(&domains, "domains", "d", []string{"all"}, "forecast domains or aliases, or 'all'")
	cmd.Flags().IntVar(&horizon, "horizon", 0, "number of future periods (0 uses the service default)")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "request parameter key=value (repeatable)")
	cmd.Flags().StringVar(&id, "id", "", "show a stored report instead of generating one")
	return cmd
}

func newReportsCmd(a *app) *cobra.Command {
	var (
		tenant string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List stored reports of a tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tenant == "" {
				return fmt.Errorf("--tenant is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()
			recs, err := a.client().ListReports(ctx, tenant, limit)
			if err != nil {
				return err
			}
			return a.render(recs, func() { a.renderReportList(recs) })
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "tenant identifier")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of reports")
	return cmd
}

// parseParams turns key=value flags into request parameters. Numbers and
// booleans keep their type so the service sees what a JSON client would send.
func parseParams(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: want key=value", kv)
		}
		value = strings.TrimSpace(value)
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			out[key] = f
		} else if b, err := strconv.ParseBool(value); err == nil {
			out[key] = b
		} else {
			out[key] = value
		}
	}
	return out, nil
}
