package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/actiongate/internal/model"
)

func printDecision(w io.Writer, d model.Decision) {
	fmt.Fprintf(w, "Decision:  %s\n", strings.ToUpper(string(d.Outcome)))
	fmt.Fprintf(w, "Action:    %s (%s/%s/%s)\n", d.Action.ID, d.Action.Engine, d.Action.Category, d.Action.Type)
	fmt.Fprintf(w, "Risk:      %s %.2f (recommends %s)\n", d.Risk.Level, d.Risk.Score, d.Risk.Recommendation)
	fmt.Fprintf(w, "Autonomy:  L%d %s\n", d.AutonomyLevel, d.AutonomyLevel)
	for _, f := range d.Risk.Factors {
		fmt.Fprintf(w, "  %-22s %6.2f x %.2f = %6.2f  %s\n", f.Name, f.Value, f.Weight, f.Contribution, f.Detail)
	}
	for _, v := range d.Boundary.Violations {
		fmt.Fprintf(w, "Violation: %s (%s)\n", v.Name, v.Detail)
	}
	if d.Fault != "" {
		fmt.Fprintf(w, "Fault:     %s\n", d.Fault)
	}
	for _, c := range d.Risk.Constraints {
		fmt.Fprintf(w, "Constraint: %s\n", c)
	}
	fmt.Fprintf(w, "Reason:    %s\n", d.Reason)
	if d.Perspectives != nil {
		printHats(w, *d.Perspectives)
	}
}

func printPipelineDecision(w io.Writer, d model.PipelineDecision) {
	ra := d.Risk
	fmt.Fprintf(w, "Decision:  %s\n", strings.ToUpper(string(d.Outcome)))
	fmt.Fprintf(w, "Pipeline:  %s (%d steps, depth %d)\n", d.Pipeline.ID, len(d.Pipeline.Steps), ra.DependencyDepth)
	fmt.Fprintf(w, "Risk:      %s %.2f (recommends %s)\n", ra.Level, ra.Score, ra.Recommendation)
	for _, s := range ra.StepRisks {
		fmt.Fprintf(w, "  %-12s %-16s %-8s %6.2f  %s/%s\n", s.StepID, s.Tool, s.Level, s.Score, s.Visibility, s.Reversibility)
	}
	for _, f := range ra.Factors {
		fmt.Fprintf(w, "Factor:    %s %.2f  %s\n", f.Name, f.Contribution, f.Detail)
	}
	impact := ra.EstimatedImpact
	fmt.Fprintf(w, "Impact:    financial %.2f, %s, %s\n", impact.Financial, impact.Visibility, impact.Reversibility)
	for _, c := range ra.Constraints {
		fmt.Fprintf(w, "Constraint: %s\n", c)
	}
	fmt.Fprintf(w, "Reason:    %s\n", d.Reason)
}

func printHats(w io.Writer, res model.SixHatsResult) {
	fmt.Fprintf(w, "Six hats:  %s (overall %.2f)\n", res.Consensus, res.OverallScore)
	for _, p := range res.Perspectives {
		fmt.Fprintf(w, "  %-7s %-8s %6.2f  %s\n", p.Hat, p.Verdict, p.Score, p.Analysis)
		for _, k := range p.KeyPoints {
			fmt.Fprintf(w, "          - %s\n", k)
		}
	}
	fmt.Fprintf(w, "  %s\n", res.Recommendation)
}
