package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kubilitics/kubilitics-forecast/internal/models"
)

// ingestBatch bounds one upload; larger files are sent in several requests.
const ingestBatch = 1000

func newIngestCmd(a *app) *cobra.Command {
	var (
		tenant string
		file   string
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Upload historical records from a YAML or JSON file",
		Long: `Upload historical records for a tenant. The file holds a list of records
in YAML or JSON ("-" reads stdin). Records without an id get one from the service.`,
		Example: `  forecastctl ingest --tenant acme -f shipments.yaml
  cat records.json | forecastctl ingest --tenant acme -f -`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tenant == "" {
				return fmt.Errorf("--tenant is required")
			}
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			recs, err := a.readRecords(file)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				return fmt.Errorf("%s holds no records", file)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()

			var received, inserted int
			for start := 0; start < len(recs); start += ingestBatch {
				end := min(start+ingestBatch, len(recs))
				resp, err := a.client().Ingest(ctx, tenant, recs[start:end])
				if err != nil {
					return fmt.Errorf("records %d-%d: %w", start, end-1, err)
				}
				received += resp.Received
				inserted += resp.Inserted
			}
			fmt.Fprintf(a.stdout, "%s %d of %d records stored for tenant %s (%d duplicates skipped)\n",
				a.styles().ok.Render("✓"), inserted, received, tenant, received-inserted)
			return nil
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "tenant identifier")
	cmd.Flags().StringVarP(&file, "file", "f", "", "records file (YAML or JSON), '-' for stdin")
	return cmd
}

// readRecords decodes a YAML or JSON list of records. JSON is valid YAML.
func (a *app) readRecords(path string) ([]models.HistoricalRecord, error) {
	var r io.Reader = a.stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	// Decode generically first: timestamps may be quoted strings or YAML
	// timestamps, and the JSON round trip accepts both.
	var raw []map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	var recs []models.HistoricalRecord
	if err := json.Unmarshal(buf, &recs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, rec := range recs {
		if _, err := models.ParseRecordKind(string(rec.Kind)); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return recs, nil
}
