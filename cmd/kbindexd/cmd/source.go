package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kbforge/kbindexd/internal/catalog"
	"github.com/kbforge/kbindexd/internal/config"
)

func newSourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage catalog data sources",
	}
	cmd.AddCommand(newSourceAddCmd(), newSourceListCmd(), newSourceRemoveCmd())
	return cmd
}

func openCatalog() (*catalog.SQLiteCatalog, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	return catalog.OpenSQLite(cfg.CatalogPath())
}

func newSourceAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <tenant> <type> <uri>",
		Short: "Register a data source for a tenant",
		Long: `Register a data source in the catalog. Type is one of relational, web
or file. Adding the same URI for the same tenant again reactivates the
existing entry instead of creating a duplicate.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := catalog.ParseKind(args[1])
			if err != nil {
				return err
			}

			cat, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()

			ds, err := cat.Add(cmd.Context(), args[0], kind, args[2])
			if err != nil {
				return err
			}
			fmt.Printf("added source %d (%s %s) for tenant %s\n", ds.ID, ds.Kind, ds.URI, ds.TenantID)
			return nil
		},
	}
}

func newSourceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <tenant>",
		Short: "List a tenant's data sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()

			sources, err := cat.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(sources) == 0 {
				fmt.Println("no sources registered")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tURI\tSTATUS\tACTIVE\tLAST INDEXED")
			for _, ds := range sources {
				last := "never"
				if ds.LastIndexedAt != nil {
					last = ds.LastIndexedAt.Format("2006-01-02 15:04:05")
				}
				status := string(ds.LastStatus)
				if status == "" {
					status = "pending"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\n",
					ds.ID, ds.Kind, ds.URI, status, ds.Active, last)
			}
			return w.Flush()
		},
	}
}

func newSourceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Deactivate a data source",
		Long: `Deactivate a data source by its catalog ID. The entry is kept but
skipped by the indexer; its vectors remain in the store until the URI
is re-registered and overwritten.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("invalid source id %q", args[0])
			}

			cat, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()

			if err := cat.Deactivate(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("deactivated source %d\n", id)
			return nil
		},
	}
}
