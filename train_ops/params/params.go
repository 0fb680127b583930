package params

import (
	"github.com/gcexplain/gcexplain/gce"

	"path/filepath"
)

const Script = "find_params.py"

func init() {
	gce.TrainOps["params"] = gce.TrainOp{
		Args: func(exp gce.Experiment, resolve gce.CheckpointResolver) ([]string, error) {
			return []string{Script}, nil
		},
		FigureDir: func(exp gce.Experiment) string {
			return filepath.Join(gce.FiguresDir, "parameter_search")
		},
	}
}
