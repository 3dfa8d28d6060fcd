package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphummel/dcims/internal/apiclient"
	"github.com/tphummel/dcims/internal/config"
	"github.com/tphummel/dcims/internal/models"
)

func newClient(cmd *cobra.Command) (*apiclient.Client, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.LoadClient(envFile)
	if err != nil {
		return nil, err
	}
	return apiclient.NewClient(cfg.URL, cfg.AnonKey, cfg.Token), nil
}

// filtersFlag reads repeated --filter column=value flags as server filters.
func filtersFlag(cmd *cobra.Command) *models.ServerFilters {
	pairs, _ := cmd.Flags().GetStringToString("filter")
	q := url.Values{}
	for k, v := range pairs {
		q.Set(k, v)
	}
	return models.ServerFiltersFromQuery(q)
}

func addFilterFlag(cmd *cobra.Command) {
	cmd.Flags().StringToString("filter", nil, "server filter as column=value, e.g. --filter status=Active (repeatable)")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import servers from a CSV file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			res, err := client.ImportCSV(cmd.Context(), in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d server(s)\n", res.Imported)
			for _, e := range res.Errors {
				fmt.Fprintln(out, "  "+e)
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d row(s) rejected", len(res.Errors))
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export servers as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if path, _ := cmd.Flags().GetString("out"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return client.ExportCSV(cmd.Context(), filtersFlag(cmd), out)
		},
	}
	cmd.Flags().StringP("out", "o", "", "write to this file instead of stdout")
	addFilterFlag(cmd)
	return cmd
}

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a widget aggregation and print the chart data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			table, _ := cmd.Flags().GetString("table")
			agg, _ := cmd.Flags().GetString("aggregation")
			field, _ := cmd.Flags().GetString("field")
			groupBy, _ := cmd.Flags().GetString("group-by")

			ds := models.DataSource{
				Table:       table,
				Aggregation: models.Aggregation(agg),
				Field:       field,
				Filters:     []models.FilterConfig{},
			}
			for _, g := range strings.Split(groupBy, ",") {
				if g = strings.TrimSpace(g); g != "" {
					ds.GroupBy = append(ds.GroupBy, g)
				}
			}

			data, err := client.WidgetData(cmd.Context(), ds, filtersFlag(cmd))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().String("table", "servers", "table to aggregate")
	cmd.Flags().String("aggregation", string(models.AggregateCount), "count, sum, avg, min or max")
	cmd.Flags().String("field", "", "column aggregated by sum, avg, min and max")
	cmd.Flags().String("group-by", "status", "comma-separated group-by columns")
	addFilterFlag(cmd)
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that a running server is healthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			status, err := client.Health(cmd.Context())
			if status != nil {
				if werr := writeJSON(cmd.OutOrStdout(), status); werr != nil {
					return werr
				}
			}
			return err
		},
	}
}
