package ablation

import (
	"github.com/gcexplain/gcexplain/gce"

	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const Script = "ablation_study.py"

// The script prints the original accuracy, the re-encoded accuracy, and the
// accuracy with each latent factor removed, e.g. "0.98 0.95 [0.61 0.7 0.97 0.98]".
var accuracyRegexp = regexp.MustCompile(`^\s*([0-9.eE+-]+)\s+([0-9.eE+-]+)\s+\[([^\]]*)\]\s*$`)

func ParseMetrics(line string) (gce.Metrics, bool) {
	match := accuracyRegexp.FindStringSubmatch(line)
	if match == nil {
		return nil, false
	}
	original, err1 := strconv.ParseFloat(match[1], 64)
	reencoded, err2 := strconv.ParseFloat(match[2], 64)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	metrics := gce.Metrics{
		"original": original,
		"reencoded": reencoded,
	}
	for i, field := range strings.Fields(match[3]) {
		x, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, false
		}
		metrics[fmt.Sprintf("removed_%d", i+1)] = x
	}
	return metrics, true
}

// ablation_study.py always loads the models of these directories,
// whatever classes it is given.
const (
	ClassifierLogDir = "mnist_cnn_149"
	GCELogDir = "mnist_gce_149"
)

func Args(exp gce.Experiment, resolve gce.CheckpointResolver) ([]string, error) {
	if exp.ClassifierLogDir() != ClassifierLogDir || exp.GCELogDir() != GCELogDir {
		return nil, fmt.Errorf("ablation reads %s and %s, not the models of experiment %s (%s, %s)", ClassifierLogDir, GCELogDir, exp.Name, exp.ClassifierLogDir(), exp.GCELogDir())
	}
	// the guard checks the same files the script opens
	for _, op := range []string{"classifier", "cvae"} {
		if _, err := resolve(exp, op); err != nil {
			return nil, fmt.Errorf("ablation needs a %s checkpoint: %w", op, err)
		}
	}
	args := []string{Script, "--classes"}
	args = append(args, exp.ClassArgs()...)
	args = append(args,
		"--clf_param_set", exp.Classifier.ParamSet,
		"--K", strconv.Itoa(exp.CVAE.K),
		"--L", strconv.Itoa(exp.CVAE.L),
		"--M", strconv.Itoa(len(exp.Classes)),
	)
	return args, nil
}

func init() {
	gce.TrainOps["ablation"] = gce.TrainOp{
		Args: Args,
		FigureDir: func(exp gce.Experiment) string {
			return filepath.Join(gce.FiguresDir, "ablation_study")
		},
		Metrics: ParseMetrics,
	}
}
