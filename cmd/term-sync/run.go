package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Sternrassler/go-term-sync/pkg/jobs"
	"github.com/Sternrassler/go-term-sync/pkg/termtree"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var dump string

	cmd := &cobra.Command{
		Use:   "run <job>",
		Short: "Run one catalog job directly, without the queue",
		Example: `  term-sync run go_pull_term_data_departments
  term-sync run go_pull_term_data_case_profile_bor --dump case-profiles.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := jobs.LoadCatalog(a.cfg.JobCatalog)
			if err != nil {
				return err
			}
			job, ok := cat.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown job %q (known: %s)", args[0], strings.Join(cat.Names(), ", "))
			}

			report, err := a.processor().RunJob(cmd.Context(), job)
			if err != nil {
				return err
			}

			if dump != "" {
				if report.Tree == nil {
					return fmt.Errorf("--dump needs a term job, %s is %s", job.Name, job.Kind)
				}
				if err := writeTree(dump, report.Tree); err != nil {
					return err
				}
			}

			fmt.Fprintf(a.out, "%s: %s, %d inserted, %d failed in %s\n",
				job.Name, report.Outcome, report.Succeeded, report.Failed, report.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&dump, "dump", "", "Write the fetched term tree as JSON to this file")
	return cmd
}

func writeTree(path string, tree *termtree.Node) error {
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write tree: %w", err)
	}
	return nil
}

func newJobsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the job catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := jobs.LoadCatalog(a.cfg.JobCatalog)
			if err != nil {
				return err
			}
			return printCatalog(a.out, cat)
		},
	}
}

func printCatalog(out io.Writer, cat jobs.Catalog) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tCASE TYPE\tTARGET")
	for _, j := range cat {
		target := ""
		switch {
		case j.Tree != nil:
			target = j.Tree.Procedure() + " (" + j.Tree.ObjectType + ")"
		case j.Flat != nil:
			target = "view " + j.Flat.ViewID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", j.Name, j.Kind, j.CaseType, target)
	}
	return w.Flush()
}
