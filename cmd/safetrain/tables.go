package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"safetrain-backend/pkg/courses"
	"safetrain-backend/pkg/plans"
)

func newPlansCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Print the subscription plan table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := plans.Default
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				if table, err = plans.Load(f); err != nil {
					return err
				}
			}
			return printPlans(cmd.OutOrStdout(), table)
		},
	}
	cmd.Flags().StringVar(&file, "file", os.Getenv("PLANS_FILE"), "plan table (TOML) to print instead of the built-in one")
	return cmd
}

func newCoursesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "courses",
		Short: "Print the course catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printCourses(cmd.OutOrStdout(), courses.Default)
		},
	}
}

func printPlans(out io.Writer, table *plans.Table) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tSTAFF\tCOURSES")
	for _, p := range table.Plans() {
		courseList := "all"
		if !p.Courses.IsAll() {
			ids := make([]string, 0, len(p.Courses.IDs()))
			for _, id := range p.Courses.IDs() {
				ids = append(ids, fmt.Sprint(id))
			}
			courseList = strings.Join(ids, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Price, table.FormatStaffLimit(p.ID), courseList)
	}
	return tw.Flush()
}

func printCourses(out io.Writer, catalog *courses.Catalog) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE")
	for _, c := range catalog.All() {
		fmt.Fprintf(tw, "%d\t%s\n", c.ID, c.Title)
	}
	return tw.Flush()
}
