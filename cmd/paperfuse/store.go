// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paperfuse/internal/store"
	"github.com/pdiddy/paperfuse/pkg/types"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Query the run archive",
	Long: `Store queries the SQLite run archive written by "search --archive".
Each archived run keeps its fused records and relevance verdicts.`,
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs, newest first",
	RunE:  runStoreList,
}

var storeShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show one archived run's records and verdicts",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreShow,
}

func init() {
	storeCmd.PersistentFlags().String("out", "output", "output directory holding the archive")
	storeShowCmd.Flags().Bool("relevant-only", false, "show only records with a relevant verdict")

	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeShowCmd)
	rootCmd.AddCommand(storeCmd)
}

func openArchive(cmd *cobra.Command) (*store.Store, error) {
	dir, _ := cmd.Flags().GetString("out")
	return store.Open(dir)
}

func runStoreList(cmd *cobra.Command, args []string) error {
	s, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.ListRuns(cmd.Context())
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no archived runs")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKEYWORD\tSOURCE\tSTARTED\tRECORDS\tRELEVANT\tTOKENS")
	for _, r := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\n",
			r.ID, r.Keyword, r.Source, r.StartedAt.Format("2006-01-02 15:04"),
			r.Records, r.Relevant, r.Tokens.TotalTokens)
	}
	return w.Flush()
}

func runStoreShow(cmd *cobra.Command, args []string) error {
	runID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run id %q", args[0])
	}

	s, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	records, verdicts, err := s.GetRun(cmd.Context(), runID)
	if err != nil {
		return err
	}

	labels := make(map[string]types.VerdictLabel, len(verdicts))
	for _, v := range verdicts {
		labels[v.ID] = v.Label
	}

	relevantOnly, _ := cmd.Flags().GetBool("relevant-only")

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DOI\tTITLE\tJOURNAL\tLABEL")
	for _, r := range records {
		label := labels[r.DOI]
		if relevantOnly && label != types.LabelRelevant {
			continue
		}
		labelText := string(label)
		if labelText == "" {
			labelText = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.DOI, truncate(r.Title, 60), r.Journal, labelText)
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
