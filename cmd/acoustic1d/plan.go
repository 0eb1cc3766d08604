package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"acoustic1d/internal/solver"
)

func newPlanCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the launch geometry and reduction passes for the configured grid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, opts)
			if err != nil {
				return err
			}
			prob, err := s.Problem()
			if err != nil {
				return err
			}
			dev, err := openDevice(s)
			if err != nil {
				return err
			}
			maxGroup := dev.MaxGroupSize()
			name := dev.Name()
			dev.Release()
			if maxGroup < 2 {
				return &solver.SetupError{
					Stage: "launch geometry",
					Err:   fmt.Errorf("%w: max group %d", solver.ErrGroupLimit, maxGroup),
				}
			}

			g := prob.Grid
			local := solver.GroupSize(prob, maxGroup)
			passes, err := solver.Plan(g.Mtot(), local)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "device   %s (max group %d)\n", name, maxGroup)
			fmt.Fprintf(out, "grid     mx=%d mbc=%d mtot=%d dx=%g\n", g.Mx, g.Mbc, g.Mtot(), g.Dx())
			fmt.Fprintf(out, "dt0      %g  (courant %g at c=%g)\n", prob.DtInitial,
				solver.Courant(prob.SoundSpeed(), prob.DtInitial, g.Dx()), prob.SoundSpeed())
			fmt.Fprintf(out, "outputs  %d every %g\n\n", prob.Outputs, prob.OutputInterval())

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "pass\tlength\tgroup\tgroups\tglobal")
			for i, p := range passes {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\n", i, p.Length, p.GroupSize, p.Groups, p.Global)
			}
			return tw.Flush()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "acoustic1d", version)
		},
	}
}
