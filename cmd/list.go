package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/localbin/localbin/internal/cache"
	"github.com/localbin/localbin/internal/config"
)

var listCmd = &cobra.Command{
	Use:          "list",
	Short:        "List builds held in the shared cache",
	RunE:         runList,
	SilenceUsage: true,
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().LoadForCommand(cmd)
	if err != nil {
		return err
	}

	idx, err := cache.OpenIndex(cfg.CacheRoot)
	if err != nil {
		return err
	}
	defer idx.Close()

	entries, err := idx.List()
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("cache is empty")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 8, 2, ' ', 0)
	fmt.Fprintln(w, "PACKAGE\tVERSION\tTARGET\tBINS\tBUILT\tKEY")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Package,
			e.ResolvedVersion,
			e.Target,
			strings.Join(e.Bins, ","),
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
			shortKey(e.Fingerprint),
		)
	}

	return w.Flush()
}

func shortKey(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
