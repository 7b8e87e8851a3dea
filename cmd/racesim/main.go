// Package main provides racesim, an offline tool that reproduces races from a
// seed or from a stored race state document.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cory-johannsen/derby/internal/game/payout"
	"github.com/cory-johannsen/derby/internal/game/race"
)

// Report is the outcome of one simulated or replayed race.
type Report struct {
	RaceID    string               `json:"raceId"`
	Seed      uint32               `json:"seed"`
	Pick      int                  `json:"pick"`
	Bet       int64                `json:"bet"`
	Entities  []race.EntitySpec    `json:"entities"`
	Effects   []race.AppliedEffect `json:"effects"`
	Samples   []Sample             `json:"samples"`
	Winner    int                  `json:"winner"`
	Win       bool                 `json:"win"`
	Delta     int64                `json:"delta"`
	Recorded  *int                 `json:"recordedWinner,omitempty"`
	Agreement *bool                `json:"agreesWithRecord,omitempty"`
}

// Sample is the standings at one instant of the race.
type Sample struct {
	Seconds   float64         `json:"seconds"`
	Standings []race.Standing `json:"standings"`
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "racesim",
		Short:         "Reproduce races offline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.AddCommand(newSimulateCmd(), newReplayCmd())
	return root
}

type reportFlags struct {
	step       time.Duration
	multiplier string
	asJSON     bool
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.step, "step", time.Second, "interval between standings samples")
	cmd.Flags().StringVar(&f.multiplier, "multiplier", "2", "decimal gross payout multiplier")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print the report as JSON")
}

func newSimulateCmd() *cobra.Command {
	var (
		seed      uint32
		entities  int
		pick      int
		bet       int64
		countdown time.Duration
		duration  time.Duration
		rf        reportFlags
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate and run a race from a seed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rules := race.Rules{
				Entities:  entities,
				MinBet:    1,
				MaxBet:    bet,
				Countdown: countdown,
				Duration:  duration,
			}
			st, err := race.New(fmt.Sprintf("sim-%d", seed), "racesim", pick, bet, rules, seed, time.UnixMilli(0))
			if err != nil {
				return err
			}
			rep, err := buildReport(st, rf)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), rep, rf.asJSON)
		},
	}
	cmd.Flags().Uint32Var(&seed, "seed", 1, "race seed")
	cmd.Flags().IntVar(&entities, "entities", 5, "number of entities")
	cmd.Flags().IntVar(&pick, "pick", 1, "picked entity id")
	cmd.Flags().Int64Var(&bet, "bet", 100, "wager")
	cmd.Flags().DurationVar(&countdown, "countdown", 5*time.Second, "countdown before the start")
	cmd.Flags().DurationVar(&duration, "duration", 9*time.Second, "race duration")
	rf.register(cmd)
	return cmd
}

func newReplayCmd() *cobra.Command {
	var rf reportFlags
	cmd := &cobra.Command{
		Use:   "replay <state.json|->",
		Short: "Re-run a stored race state document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var st race.State
			if err := json.NewDecoder(r).Decode(&st); err != nil {
				return fmt.Errorf("decoding race state: %w", err)
			}
			if err := st.Validate(); err != nil {
				return err
			}
			rep, err := buildReport(&st, rf)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), rep, rf.asJSON)
		},
	}
	rf.register(cmd)
	return cmd
}

// buildReport samples st from the start to the end of the race and resolves
// the winner the same way settlement does.
func buildReport(st *race.State, rf reportFlags) (Report, error) {
	policy, err := payout.ParsePolicy(rf.multiplier)
	if err != nil {
		return Report{}, err
	}
	if rf.step <= 0 {
		return Report{}, fmt.Errorf("step must be > 0, got %s", rf.step)
	}

	rep := Report{
		RaceID:   st.RaceID,
		Seed:     st.Seed,
		Pick:     st.Pick,
		Bet:      st.Bet,
		Entities: st.Entities,
		Effects:  st.AppliedEffects,
		Recorded: st.Winner,
	}

	start := time.UnixMilli(st.RaceStartsAt)
	total := time.Duration(st.RaceEndsAt-st.RaceStartsAt) * time.Millisecond
	for at := time.Duration(0); ; at += rf.step {
		if at > total {
			at = total
		}
		rep.Samples = append(rep.Samples, Sample{
			Seconds:   at.Seconds(),
			Standings: race.Standings(st, start.Add(at)),
		})
		if at == total {
			break
		}
	}

	// A recorded winner is reported alongside, not trusted.
	recorded := st.Winner
	st.Winner = nil
	rep.Winner = race.ResolveWinner(st)
	st.Winner = recorded

	rep.Win = rep.Winner == st.Pick
	rep.Delta = policy.Delta(st.Bet, rep.Win)
	if recorded != nil {
		agrees := *recorded == rep.Winner
		rep.Agreement = &agrees
	}
	return rep, nil
}

func writeReport(w io.Writer, rep Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Fprintf(w, "race %s  seed %d  pick %d  bet %d\n\n", rep.RaceID, rep.Seed, rep.Pick, rep.Bet)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tCURVE\tPARAMS")
	for _, e := range rep.Entities {
		fmt.Fprintf(tw, "%d\t%s\ta=%.4f b=%.4f c=%.4f k=%.4f\n",
			e.ID, e.Curve.Family, e.Curve.Params.A, e.Curve.Params.B, e.Curve.Params.C, e.Curve.Params.K)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(rep.Effects) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ITEM\tEFFECT\tTARGET\tCALLER\tAPPLIED_MS")
		for _, e := range rep.Effects {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\n", e.ItemID, e.EffectType, e.TargetID, e.CallerID, e.AppliedAt)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	for _, s := range rep.Samples {
		fmt.Fprintf(w, "t=%5.2fs ", s.Seconds)
		for _, st := range s.Standings {
			fmt.Fprintf(w, " #%d:%d(%.2f)", st.Rank, st.ID, st.Distance)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\nwinner %d  win %t  delta %+d\n", rep.Winner, rep.Win, rep.Delta)
	if rep.Agreement != nil {
		fmt.Fprintf(w, "recorded winner %d  agrees %t\n", *rep.Recorded, *rep.Agreement)
	}
	return nil
}
