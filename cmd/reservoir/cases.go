package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/reservoir/internal/db"
	"github.com/banshee-data/reservoir/internal/grid"
	"github.com/banshee-data/reservoir/internal/synth"
)

func synthCmd(a *app) *cobra.Command {
	var (
		dims  string
		steps int
		seed  int64
		lgrs  []string
		desc  string
	)
	cmd := &cobra.Command{
		Use:   "synth NAME",
		Short: "Generate a synthetic case and import it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDims(dims)
			if err != nil {
				return err
			}
			gen := synth.NewGenerator(args[0], d)
			gen.ReportSteps = steps
			gen.Seed = seed
			for _, s := range lgrs {
				ref, err := parseRefinement(s)
				if err != nil {
					return err
				}
				gen.LGRs = append(gen.LGRs, ref)
			}
			data, err := db.SynthCaseData(gen)
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			c := &db.Case{Name: args[0], Description: desc}
			if err := store.ImportCase(cmd.Context(), c, data); err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&dims, "dims", "10x10x3", "grid dimensions NXxNYxNZ")
	cmd.Flags().IntVar(&steps, "steps", 60, "monthly report steps")
	cmd.Flags().Int64Var(&seed, "seed", 1, "noise seed")
	cmd.Flags().StringArrayVar(&lgrs, "lgr", nil, "refinement NAME@i1:i2,j1:j2,k1:k2/RXxRYxRZ (repeatable)")
	cmd.Flags().StringVar(&desc, "description", "synthetic case", "case description")
	return cmd
}

func infoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info [CASE]",
		Short: "List cases, or describe one case",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var cases []db.Case
			if len(args) == 1 {
				c, err := findCase(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				cases = []db.Case{*c}
			} else if cases, err = store.ListCases(cmd.Context()); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTART\tDIMS\tACTIVE\tLGRS\tVECTORS")
			for _, c := range cases {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
					c.ID, c.Name, c.StartDate.Format("2006-01-02"), c.Dims, c.ActiveCount, c.LGRCount, c.VectorCount)
			}
			return tw.Flush()
		},
	}
}

func vectorsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "vectors CASE",
		Short: "List the summary vectors of a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			c, err := findCase(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			st, err := store.LoadSummary(cmd.Context(), c.ID)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tUNIT\tSAMPLES")
			for _, name := range st.AvailableAddresses() {
				v, err := st.Vector(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\n", v.Name, v.Unit, len(v.Values))
			}
			return tw.Flush()
		},
	}
}

// parseDims reads "NXxNYxNZ".
func parseDims(s string) (grid.Dims, error) {
	parts := strings.Split(strings.ToLower(s), "x")
	if len(parts) != 3 {
		return grid.Dims{}, fmt.Errorf("dims %q: want NXxNYxNZ", s)
	}
	var n [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 1 {
			return grid.Dims{}, fmt.Errorf("dims %q: %q is not a positive integer", s, p)
		}
		n[i] = v
	}
	return grid.Dims{NX: n[0], NY: n[1], NZ: n[2]}, nil
}

// parseRefinement reads "NAME@i1:i2,j1:j2,k1:k2/RXxRYxRZ".
func parseRefinement(s string) (synth.Refinement, error) {
	name, rest, ok := strings.Cut(s, "@")
	if !ok || name == "" {
		return synth.Refinement{}, fmt.Errorf("lgr %q: want NAME@i1:i2,j1:j2,k1:k2/RXxRYxRZ", s)
	}
	boxText, ratioText, ok := strings.Cut(rest, "/")
	if !ok {
		return synth.Refinement{}, fmt.Errorf("lgr %q: missing /ratio", s)
	}
	var ranges [3][2]int
	axes := strings.Split(boxText, ",")
	if len(axes) != 3 {
		return synth.Refinement{}, fmt.Errorf("lgr %q: box needs three ranges", s)
	}
	for n, ax := range axes {
		lo, hi, err := parseSpan(ax)
		if err != nil {
			return synth.Refinement{}, fmt.Errorf("lgr %q: %w", s, err)
		}
		ranges[n] = [2]int{lo, hi}
	}
	ratio, err := parseDims(ratioText)
	if err != nil {
		return synth.Refinement{}, fmt.Errorf("lgr %q: %w", s, err)
	}
	return synth.Refinement{
		Name: name,
		Box: grid.Box{
			I1: ranges[0][0], I2: ranges[0][1],
			J1: ranges[1][0], J2: ranges[1][1],
			K1: ranges[2][0], K2: ranges[2][1],
		},
		Ratio: ratio,
	}, nil
}

// parseSpan reads "lo:hi" or a single index.
func parseSpan(s string) (lo, hi int, err error) {
	a, b, ok := strings.Cut(s, ":")
	if lo, err = strconv.Atoi(strings.TrimSpace(a)); err != nil {
		return 0, 0, fmt.Errorf("bad index %q", a)
	}
	if !ok {
		return lo, lo, nil
	}
	if hi, err = strconv.Atoi(strings.TrimSpace(b)); err != nil {
		return 0, 0, fmt.Errorf("bad index %q", b)
	}
	return lo, hi, nil
}
