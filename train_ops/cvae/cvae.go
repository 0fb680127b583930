package cvae

import (
	"github.com/gcexplain/gcexplain/gce"

	"fmt"
	"strconv"
)

const Script = "mnist_cvae_train.py"

func Args(exp gce.Experiment, resolve gce.CheckpointResolver) ([]string, error) {
	p := exp.CVAE
	args := []string{Script, "--classes"}
	args = append(args, exp.ClassArgs()...)
	args = append(args,
		"--train_steps", strconv.Itoa(p.TrainSteps),
		"--batch_size", strconv.Itoa(p.BatchSize),
		"--lr", fmt.Sprintf("%v", p.LR),
		"--Nalpha", strconv.Itoa(p.Nalpha),
		"--Nbeta", strconv.Itoa(p.Nbeta),
		"--K", strconv.Itoa(p.K),
		"--L", strconv.Itoa(p.L),
		"--lam", fmt.Sprintf("%v", p.Lambda),
		"--datasets", exp.Dataset,
		"--log_dir", exp.GCELogDir(),
	)
	if p.UseClassifier == nil || *p.UseClassifier {
		path, err := resolve(exp, "classifier")
		if err != nil {
			return nil, fmt.Errorf("cvae needs a classifier: %w", err)
		}
		args = append(args, "--classifier_path", path)
	}
	return args, nil
}

func init() {
	gce.TrainOps["cvae"] = gce.TrainOp{
		Args: Args,
		Checkpoint: func(exp gce.Experiment) string {
			return exp.GCECheckpoint()
		},
	}
}
