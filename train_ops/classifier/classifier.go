package classifier

import (
	"github.com/gcexplain/gcexplain/gce"

	"fmt"
	"regexp"
	"strconv"
)

const Script = "mnist_classifier_train.py"

// The script ends by printing a dict like {'Test': 0.9951, 'Valid': 0.9967}.
var resultRegexp = regexp.MustCompile(`'(Test|Valid)':\s*([-+0-9.eE]+)`)

func ParseMetrics(line string) (gce.Metrics, bool) {
	matches := resultRegexp.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return nil, false
	}
	metrics := make(gce.Metrics)
	for _, match := range matches {
		x, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			continue
		}
		metrics[match[1]] = x
	}
	return metrics, len(metrics) > 0
}

func Args(exp gce.Experiment, resolve gce.CheckpointResolver) ([]string, error) {
	p := exp.Classifier
	args := []string{Script, "--classes"}
	args = append(args, exp.ClassArgs()...)
	args = append(args,
		"--max_epochs", strconv.Itoa(p.MaxEpochs),
		"--datasets", exp.Dataset,
		"--log_dir", p.LogDir,
		"--clf_param_set", p.ParamSet,
		"--lr", fmt.Sprintf("%v", p.LR),
		"--momentum", fmt.Sprintf("%v", p.Momentum),
		"--batch_size", strconv.Itoa(p.BatchSize),
		// interactive progress bars are useless in captured output
		"--progress_bar", "False",
	)
	if p.AddClassesToPath != nil && !*p.AddClassesToPath {
		args = append(args, "--add_classes_to_cpt_path", "False")
	}
	return args, nil
}

func init() {
	gce.TrainOps["classifier"] = gce.TrainOp{
		Args: Args,
		Checkpoint: func(exp gce.Experiment) string {
			return exp.ClassifierCheckpoint()
		},
		Metrics: ParseMetrics,
	}
}
