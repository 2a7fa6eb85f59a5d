package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/reservoir/internal/grid"
	"github.com/banshee-data/reservoir/internal/report"
	"github.com/banshee-data/reservoir/internal/selection"
	"github.com/banshee-data/reservoir/internal/simcase"
	"github.com/banshee-data/reservoir/internal/summary"
)

// openCase finds a case and opens it for reading. The returned cleanup
// closes both the case and the store.
func (a *app) openCase(ctx context.Context, ref string) (*simcase.Case, func(), error) {
	store, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}
	row, err := findCase(ctx, store, ref)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	c, err := simcase.Open(ctx, row.ID, store)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return c, func() {
		c.Close()
		store.Close()
	}, nil
}

// frequencyFlag falls back to the configured default when the flag is unset.
func (a *app) frequencyFlag(cmd *cobra.Command, value string) (summary.Frequency, error) {
	if !cmd.Flags().Changed("frequency") {
		return a.cfg.GetDefaultFrequency(), nil
	}
	return summary.ParseFrequency(value)
}

func resampleCmd(a *app) *cobra.Command {
	var (
		freq string
		csv  bool
	)
	cmd := &cobra.Command{
		Use:   "resample CASE VECTOR",
		Short: "Print a summary vector on a calendar grid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.frequencyFlag(cmd, freq)
			if err != nil {
				return err
			}
			c, done, err := a.openCase(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()
			st, err := c.Summary()
			if err != nil {
				return err
			}
			if csv {
				// ExportText writes every vector; narrow it to one.
				one, err := singleVectorStore(st, args[1])
				if err != nil {
					return err
				}
				return one.ExportText(cmd.OutOrStdout(), f)
			}
			series, err := st.Resample(args[1], f)
			if err != nil {
				return err
			}
			unit, _ := st.Unit(args[1])
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "DATE\t%s\n", withUnit(args[1], unit))
			for n, t := range st.Dates(series) {
				fmt.Fprintf(tw, "%s\t%g\n", t.Format("2006-01-02"), series.Values[n])
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&freq, "frequency", "none", "none, day, month, quarter or year")
	cmd.Flags().BoolVar(&csv, "csv", false, "write CSV instead of a table")
	return cmd
}

func singleVectorStore(st *summary.Store, name string) (*summary.Store, error) {
	series, err := st.VectorValues(name)
	if err != nil {
		return nil, err
	}
	unit, err := st.Unit(name)
	if err != nil {
		return nil, err
	}
	one, err := summary.NewStore(st.StartDate(), series.Days)
	if err != nil {
		return nil, err
	}
	if err := one.AddVector(name, unit, series.Values); err != nil {
		return nil, err
	}
	return one, nil
}

func withUnit(name, unit string) string {
	if unit == "" {
		return name
	}
	return name + " [" + unit + "]"
}

func selectCmd(a *app) *cobra.Command {
	var (
		box    string
		region string
		of     string
		op     string
		lgr    string
	)
	cmd := &cobra.Command{
		Use:   "select CASE",
		Short: "Select cells by box or region and aggregate a property over them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if box == "" && region == "" {
				return fmt.Errorf("need --box or --region")
			}
			aggregate, err := selection.ParseOp(op)
			if err != nil {
				return err
			}
			c, done, err := a.openCase(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()

			g, err := c.GridFor(simcase.PropertyKey{Category: simcase.Static, Grid: lgr})
			if err != nil {
				return err
			}
			var preds selection.And
			if box != "" {
				p, err := parseBox(box, g.Dimensions())
				if err != nil {
					return err
				}
				preds = append(preds, p)
			}
			if region != "" {
				name, target, err := parseRegion(region)
				if err != nil {
					return err
				}
				values, err := c.Property(cmd.Context(), simcase.PropertyKey{Category: simcase.Static, Name: name, Grid: lgr})
				if err != nil {
					return err
				}
				preds = append(preds, selection.Equal{Values: values, Target: target})
			}
			sel, err := selection.Evaluate(g, preds)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if of == "" {
				fmt.Fprintf(out, "%d cells\n", sel.Len())
				return nil
			}
			values, err := c.Property(cmd.Context(), simcase.PropertyKey{Category: simcase.Static, Name: of, Grid: lgr})
			if err != nil {
				return err
			}
			result, err := selection.Aggregate(sel, values, aggregate)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s(%s) over %d cells = %g\n", aggregate, of, sel.Len(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&box, "box", "", "IJK box i1:i2,j1:j2,k1:k2 (* selects a whole axis)")
	cmd.Flags().StringVar(&region, "region", "", "region filter PROP=VALUE, e.g. FIPNUM=2")
	cmd.Flags().StringVar(&of, "of", "", "property to aggregate")
	cmd.Flags().StringVar(&op, "op", "sum", "sum, mean or count")
	cmd.Flags().StringVar(&lgr, "lgr", "", "select within this LGR")
	return cmd
}

func parseBox(s string, d grid.Dims) (selection.Box, error) {
	axes := strings.Split(s, ",")
	if len(axes) != 3 {
		return selection.Box{}, fmt.Errorf("box %q: want i1:i2,j1:j2,k1:k2", s)
	}
	var r [3]selection.Range
	for n, ax := range axes {
		if strings.TrimSpace(ax) == "*" {
			r[n] = selection.Full([]int{d.NX, d.NY, d.NZ}[n])
			continue
		}
		lo, hi, err := parseSpan(ax)
		if err != nil {
			return selection.Box{}, fmt.Errorf("box %q: %w", s, err)
		}
		r[n] = selection.Range{Lo: lo, Hi: hi}
	}
	return selection.Box{I: r[0], J: r[1], K: r[2]}, nil
}

func parseRegion(s string) (string, float64, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", 0, fmt.Errorf("region %q: want PROP=VALUE", s)
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return "", 0, fmt.Errorf("region %q: value must be numeric", s)
	}
	return name, v, nil
}

func plotCmd(a *app) *cobra.Command {
	var (
		output string
		freq   string
	)
	cmd := &cobra.Command{
		Use:   "plot CASE VECTOR...",
		Short: "Plot summary vectors to PNG, SVG or PDF",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.frequencyFlag(cmd, freq)
			if err != nil {
				return err
			}
			c, done, err := a.openCase(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()
			st, err := c.Summary()
			if err != nil {
				return err
			}
			p := report.NewPlotter(a.cfg.GetPlotWidthCm(), a.cfg.GetPlotHeightCm())
			if err := p.WriteVectorPlot(output, st, args[1:], f); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "vectors.png", "output file; the extension picks the format")
	cmd.Flags().StringVar(&freq, "frequency", "none", "none, day, month, quarter or year")
	return cmd
}

func exportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export CASE",
		Short: "Write the active cells and summary table of a case as text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := a.openCase(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()
			if output == "" || output == "-" {
				return c.ExportText(cmd.OutOrStdout())
			}
			return report.WriteText(output, c)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")
	return cmd
}
