package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitalsd/vitalsd/pkg/client"
)

func newClient() *client.Client {
	return client.New(apiFlag, tokenFlag)
}

// newIngestCmd submits a payload file as-is; the server accepts both the
// canonical and legacy exporter shapes.
func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <payload.json>",
		Short: "Submit a metrics payload file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			res, err := newClient().IngestRaw(cmd.Context(), body)
			if err != nil {
				return err
			}
			if res.Async {
				fmt.Fprintf(cmd.OutOrStdout(), "accepted for background processing, raw_ingestion_id=%s\n", res.RawIngestionID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status=%s processed=%d failed=%d raw_ingestion_id=%s\n",
				res.ProcessingStatus, res.ProcessedCount, res.FailedCount, res.RawIngestionID)
			for _, e := range res.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  error: %s: %s\n", e.MetricType, e.ErrorMessage)
			}
			return nil
		},
	}
}

func newQueryCmd() *cobra.Command {
	queryCmd := &cobra.Command{Use: "query", Short: "Read endpoints"}

	var fromStr, toStr string
	var limit int
	parseWindow := func() (from, to time.Time, err error) {
		if fromStr != "" {
			if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
				return
			}
		}
		if toStr != "" {
			to, err = time.Parse(time.RFC3339, toStr)
		}
		return
	}

	hrCmd := &cobra.Command{
		Use:   "heart-rate",
		Short: "Fetch heart-rate points",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := parseWindow()
			if err != nil {
				return err
			}
			data, err := newClient().HeartRateSeries(cmd.Context(), from, to, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, data)
		},
	}
	hrCmd.Flags().IntVarP(&limit, "limit", "l", 0, "Max points (0 = server default)")

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Fetch the aggregate summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := parseWindow()
			if err != nil {
				return err
			}
			data, err := newClient().Summary(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			return printJSON(cmd, data)
		},
	}

	for _, c := range []*cobra.Command{hrCmd, summaryCmd} {
		c.Flags().StringVar(&fromStr, "from", "", "Window start, RFC 3339")
		c.Flags().StringVar(&toStr, "to", "", "Window end, RFC 3339")
		queryCmd.AddCommand(c)
	}
	return queryCmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show service runtime status",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().ServiceStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, data)
		},
	}
}

func printJSON(cmd *cobra.Command, raw json.RawMessage) error {
	var buf any
	if err := json.Unmarshal(raw, &buf); err != nil {
		return err
	}
	out, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
