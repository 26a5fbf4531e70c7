package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kbforge/kbindexd/internal/config"
)

func newStatsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show indexing statistics from a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			url := adminURL(cfg.Server.Addr) + "/stats"
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := adminClient().Do(req)
			if err != nil {
				return fmt.Errorf("daemon not reachable at %s: %w", url, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				return fmt.Errorf("stats request failed: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
			}

			var stats struct {
				Cycles          int64             `json:"cycles"`
				SourcesIndexed  int64             `json:"sources_indexed"`
				TotalDurationMS int64             `json:"total_duration_ms"`
				Outcomes        map[string]int64  `json:"outcomes"`
				Collections     map[string]uint64 `json:"collections"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}

			fmt.Printf("cycles completed:  %d\n", stats.Cycles)
			fmt.Printf("sources indexed:   %d\n", stats.SourcesIndexed)
			fmt.Printf("total cycle time:  %dms\n", stats.TotalDurationMS)

			if len(stats.Outcomes) > 0 {
				fmt.Println("\noutcomes:")
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				for _, key := range sortedKeys(stats.Outcomes) {
					fmt.Fprintf(w, "  %s\t%d\n", key, stats.Outcomes[key])
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}

			if len(stats.Collections) > 0 {
				fmt.Println("\ncollections:")
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				for _, name := range sortedKeys(stats.Collections) {
					fmt.Fprintf(w, "  %s\t%d points\n", name, stats.Collections[name])
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
