package figures

import (
	"github.com/gcexplain/gcexplain/gce"

	"fmt"
)

// Python snippet calling generate_figures(implementation, filetype).
func Snippet(implementation string, filetype string) string {
	return fmt.Sprintf("from generate_figures import generate_figures; generate_figures(%s, %s)", pyQuote(implementation), pyQuote(filetype))
}

// Quote a string as a python literal. Experiment validation already rejects quotes.
func pyQuote(s string) string {
	return "'" + s + "'"
}

func Args(exp gce.Experiment, resolve gce.CheckpointResolver) ([]string, error) {
	// generate_figures loads the latest explainer checkpoint
	if _, err := resolve(exp, "cvae"); err != nil {
		return nil, fmt.Errorf("figures need a trained explainer: %w", err)
	}
	return []string{"-c", Snippet(exp.Figures.Implementation, exp.Figures.Filetype)}, nil
}

func init() {
	gce.TrainOps["figures"] = gce.TrainOp{
		Args: Args,
		FigureDir: func(exp gce.Experiment) string {
			return exp.FigureDir()
		},
	}
}
