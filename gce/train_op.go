package gce

import (
	"sort"
)

// Resolves the checkpoint another op produced for an experiment.
// Returns the checkpoint path relative to the scripts directory.
type CheckpointResolver func(exp Experiment, op string) (string, error)

type TrainOp struct {
	// Command-line arguments, starting with the script, passed to the python interpreter.
	Args func(exp Experiment, resolve CheckpointResolver) ([]string, error)
	// Checkpoint written by a successful run, relative to the scripts directory.
	// Empty if the op produces figures only.
	Checkpoint func(exp Experiment) string
	// Directory of figures written by a successful run, if any.
	FigureDir func(exp Experiment) string
	// Optional parser for metrics printed by the script.
	Metrics MetricsParser
}

var TrainOps = make(map[string]TrainOp)

func GetTrainOp(opName string) *TrainOp {
	op, ok := TrainOps[opName]
	if !ok {
		return nil
	}
	return &op
}

func TrainOpNames() []string {
	var names []string
	for name := range TrainOps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

