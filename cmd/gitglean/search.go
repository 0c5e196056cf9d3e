package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bull/gitglean/internal/retriever"
)

func newSearchCmd() *cobra.Command {
	var (
		asJSON  bool
		preview int
	)

	cmd := &cobra.Command{
		Use:     "search <repository-url> <query...>",
		Short:   "Search an ingested repository",
		Example: `  gitglean search https://github.com/octocat/Hello-World "where is the greeting printed?"`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context(), "console")
			if err != nil {
				return err
			}
			defer env.cleanup()

			query := strings.Join(args[1:], " ")
			results, err := env.app.Retriever.Search(cmd.Context(), query, args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			printResults(cmd.OutOrStdout(), results, preview)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the results as JSON")
	cmd.Flags().IntVar(&preview, "preview", 3, "lines of each excerpt to print (0 for none)")
	return cmd
}

func printResults(w io.Writer, results []retriever.Result, preview int) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching files found.")
		return
	}
	for i, r := range results {
		fmt.Fprintf(w, "%2d. %s (score %.4f)\n", i+1, r.Source, r.Score)
		if preview <= 0 {
			continue
		}
		lines := strings.Split(strings.TrimSpace(r.PageContent), "\n")
		if len(lines) > preview {
			lines = lines[:preview]
		}
		for _, line := range lines {
			fmt.Fprintf(w, "      %s\n", line)
		}
	}
}
