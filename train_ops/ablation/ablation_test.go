package ablation

import (
	"github.com/gcexplain/gcexplain/gce"

	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParseMetrics(t *testing.T) {
	metrics, ok := ParseMetrics("0.9873 0.9512 [0.6124 0.7003  0.9791 0.9802]")
	if !ok {
		t.Fatalf("accuracy line not recognized")
	}
	expected := gce.Metrics{
		"original": 0.9873,
		"reencoded": 0.9512,
		"removed_1": 0.6124,
		"removed_2": 0.7003,
		"removed_3": 0.9791,
		"removed_4": 0.9802,
	}
	if !reflect.DeepEqual(metrics, expected) {
		t.Errorf("metrics = %v", metrics)
	}

	for _, line := range []string{"done 5a", "pretrained model loaded!", "1000"} {
		if _, ok := ParseMetrics(line); ok {
			t.Errorf("line %q parsed as metrics", line)
		}
	}
}

func TestArgs(t *testing.T) {
	exp := gce.NewExperiment("mnist_149", gce.DatasetTraditional, []int{1, 4, 9})
	exp.CVAE.K, exp.CVAE.L = 2, 2
	var resolved []string
	args, err := Args(exp, func(exp gce.Experiment, op string) (string, error) {
		resolved = append(resolved, op)
		return "x", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(resolved, []string{"classifier", "cvae"}) {
		t.Errorf("resolved %v", resolved)
	}
	expected := []string{"ablation_study.py", "--classes", "1", "4", "9", "--clf_param_set", "OShaugnessy", "--K", "2", "--L", "2", "--M", "3"}
	if !reflect.DeepEqual(args, expected) {
		t.Errorf("args = %v", args)
	}

	stale := errors.New("stale")
	_, err = Args(exp, func(exp gce.Experiment, op string) (string, error) {
		if op == "cvae" {
			return "", stale
		}
		return "x", nil
	})
	if !errors.Is(err, stale) {
		t.Errorf("Args error = %v", err)
	}
}

func TestArgsOnlyForHardcodedModels(t *testing.T) {
	resolve := func(exp gce.Experiment, op string) (string, error) {
		return "x", nil
	}
	for _, exp := range []gce.Experiment{
		gce.NewExperiment("mnist_38", gce.DatasetTraditional, []int{3, 8}),
		gce.NewExperiment("fmnist_149", gce.DatasetFashion, []int{1, 4, 9}),
	} {
		if _, err := Args(exp, resolve); err == nil || !strings.Contains(err.Error(), "mnist_cnn_149") {
			t.Errorf("Args(%s) error = %v", exp.Name, err)
		}
	}

	// a differently named experiment writing the same directories is fine
	exp := gce.NewExperiment("digits_149", gce.DatasetTraditional, []int{9, 4, 1})
	var checked []string
	_, err := Args(exp, func(exp gce.Experiment, op string) (string, error) {
		if op == "classifier" {
			checked = append(checked, exp.ClassifierCheckpoint())
		} else {
			checked = append(checked, exp.GCECheckpoint())
		}
		return "x", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{
		filepath.Join("pretrained_models", "mnist_cnn_149", "model.pt"),
		filepath.Join("pretrained_models", "mnist_gce_149", "gce_model.pt"),
	}
	if !reflect.DeepEqual(checked, expected) {
		t.Errorf("checked %v", checked)
	}
}
