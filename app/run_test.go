package app

import (
	"github.com/gcexplain/gcexplain/gce"

	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testCheckpoint = "pretrained_models/test_cnn_38/model.pt"

func init() {
	FlushInterval = 10 * time.Millisecond

	shellOp := func(script string) func(gce.Experiment, gce.CheckpointResolver) ([]string, error) {
		return func(exp gce.Experiment, resolve gce.CheckpointResolver) ([]string, error) {
			return []string{"-c", script}, nil
		}
	}
	checkpoint := func(exp gce.Experiment) string {
		return testCheckpoint
	}
	gce.TrainOps["test-train"] = gce.TrainOp{
		Args: shellOp("echo training; mkdir -p pretrained_models/test_cnn_38 && touch " + testCheckpoint + " && echo \"{'Test': 0.9}\""),
		Checkpoint: checkpoint,
		Metrics: func(line string) (gce.Metrics, bool) {
			if strings.Contains(line, "'Test'") {
				return gce.Metrics{"Test": 0.9}, true
			}
			return nil, false
		},
	}
	gce.TrainOps["test-crash"] = gce.TrainOp{
		Args: shellOp("mkdir -p pretrained_models/test_cnn_38 && touch " + testCheckpoint + " && echo 'CUDA out of memory' >&2 && exit 3"),
		Checkpoint: checkpoint,
	}
	gce.TrainOps["test-noop"] = gce.TrainOp{
		Args: shellOp("echo nothing saved"),
		Checkpoint: checkpoint,
	}
	gce.TrainOps["test-slow"] = gce.TrainOp{
		Args: shellOp("echo started; exec sleep 30"),
		Checkpoint: checkpoint,
	}
	gce.TrainOps["test-figures"] = gce.TrainOp{
		Args: shellOp("mkdir -p figures/mnist_38"),
		FigureDir: func(exp gce.Experiment) string {
			return exp.FigureDir()
		},
	}
	gce.TrainOps["test-nofigures"] = gce.TrainOp{
		Args: shellOp("echo plotting"),
		FigureDir: func(exp gce.Experiment) string {
			return exp.FigureDir()
		},
	}
	gce.TrainOps["test-consumer"] = gce.TrainOp{
		Args: func(exp gce.Experiment, resolve gce.CheckpointResolver) ([]string, error) {
			path, err := resolve(exp, "test-train")
			if err != nil {
				return nil, err
			}
			return []string{"-c", "test -f " + path}, nil
		},
	}
}

// Fresh database and scripts directory for one test.
func setupTest(t *testing.T) gce.Experiment {
	t.Helper()
	dir := t.TempDir()
	OpenDB(filepath.Join(dir, "test.sqlite3"))
	InitDB(true)
	Config.ScriptsDir = dir
	Config.Python = "sh"
	Config.Env = nil

	exp := gce.NewExperiment("mnist_38", gce.DatasetTraditional, []int{3, 8})
	SetExperiments([]gce.Experiment{exp})
	return exp
}

func startAndWait(t *testing.T, exp gce.Experiment, op string) *DBRun {
	t.Helper()
	run, err := StartRun(exp, op)
	if err != nil {
		t.Fatalf("StartRun(%s) = %v", op, err)
	}
	run = WaitRun(run.UUID, 10*time.Second)
	if run == nil || !run.Finished() {
		t.Fatalf("run %s did not finish", op)
	}
	waitJobDone(t, run.JobID)
	return run
}

func waitJobDone(t *testing.T, jobID int) *DBJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job := GetJob(jobID)
		if job != nil && job.Done {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %d not done", jobID)
	return nil
}

func TestRunRegistersCheckpoint(t *testing.T) {
	exp := setupTest(t)
	run := startAndWait(t, exp, "test-train")
	if run.Status != gce.RunDone {
		t.Fatalf("status = %s (%s)", run.Status, run.Error)
	}
	if run.Checkpoint != testCheckpoint {
		t.Errorf("checkpoint = %q", run.Checkpoint)
	}
	if run.Metrics["Test"] != 0.9 {
		t.Errorf("metrics = %v", run.Metrics)
	}

	job := GetJob(run.JobID)
	if job.Error != "" {
		t.Errorf("job error = %q", job.Error)
	}
	var state gce.RunJobState
	gce.JsonUnmarshal([]byte(job.State), &state)
	if len(state.Lines) != 2 || state.Lines[0] != "training" {
		t.Errorf("job lines = %v", state.Lines)
	}

	path, err := ResolveCheckpoint(exp, "test-train")
	if err != nil || path != testCheckpoint {
		t.Errorf("ResolveCheckpoint = %q, %v", path, err)
	}

	consumer := startAndWait(t, exp, "test-consumer")
	if consumer.Status != gce.RunDone {
		t.Errorf("consumer status = %s (%s)", consumer.Status, consumer.Error)
	}
}

func TestFailedRunMakesCheckpointStale(t *testing.T) {
	exp := setupTest(t)
	startAndWait(t, exp, "test-train")

	// the crash rewrites the checkpoint before dying
	run := startAndWait(t, exp, "test-crash")
	if run.Status != gce.RunFailed {
		t.Fatalf("status = %s", run.Status)
	}
	if run.Checkpoint != "" {
		t.Errorf("failed run registered checkpoint %s", run.Checkpoint)
	}
	if !strings.Contains(run.Error, "exit status 3") {
		t.Errorf("error = %q", run.Error)
	}

	_, err := ResolveCheckpoint(exp, "test-crash")
	if !errors.Is(err, ErrStaleCheckpoint) {
		t.Errorf("ResolveCheckpoint after crash = %v; want ErrStaleCheckpoint", err)
	}

	consumer := startAndWait(t, exp, "test-consumer")
	if consumer.Status != gce.RunDone {
		t.Errorf("test-train checkpoint should still resolve: %s", consumer.Error)
	}
}

func TestRunWithoutCheckpointFails(t *testing.T) {
	exp := setupTest(t)
	run := startAndWait(t, exp, "test-noop")
	if run.Status != gce.RunFailed || !strings.Contains(run.Error, "was not written") {
		t.Errorf("status = %s, error = %q", run.Status, run.Error)
	}
}

func TestStaleFileIsNotRegistered(t *testing.T) {
	exp := setupTest(t)
	fname := filepath.Join(Config.ScriptsDir, testCheckpoint)
	os.MkdirAll(filepath.Dir(fname), 0755)
	if err := os.WriteFile(fname, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	os.Chtimes(fname, old, old)

	run := startAndWait(t, exp, "test-noop")
	if run.Status != gce.RunFailed || !strings.Contains(run.Error, "predates") {
		t.Errorf("status = %s, error = %q", run.Status, run.Error)
	}
	if _, err := ResolveCheckpoint(exp, "test-noop"); !errors.Is(err, ErrStaleCheckpoint) {
		t.Errorf("ResolveCheckpoint = %v", err)
	}
}

func TestOneActiveRunAndStop(t *testing.T) {
	exp := setupTest(t)
	run, err := StartRun(exp, "test-slow")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := StartRun(exp, "test-slow"); !errors.Is(err, ErrRunActive) {
		t.Errorf("second StartRun = %v; want ErrRunActive", err)
	}
	if _, err := ResolveCheckpoint(exp, "test-slow"); !errors.Is(err, ErrStaleCheckpoint) {
		t.Errorf("ResolveCheckpoint while running = %v", err)
	}

	job := getRunningJob(run.JobID)
	if job == nil {
		t.Fatalf("run not attached to its job")
	}
	if err := job.Stop(); err != nil {
		t.Fatal(err)
	}
	run = WaitRun(run.UUID, 10*time.Second)
	if run.Status != gce.RunFailed || run.Error != "stopped by user" {
		t.Errorf("status = %s, error = %q", run.Status, run.Error)
	}
	waitJobDone(t, run.JobID)
	if getRunningJob(run.JobID) != nil {
		t.Errorf("stopped job still attached")
	}
}

func TestStartFailure(t *testing.T) {
	exp := setupTest(t)
	Config.Python = filepath.Join(Config.ScriptsDir, "no-such-python")
	run, err := StartRun(exp, "test-train")
	if err == nil {
		t.Fatalf("StartRun succeeded with a missing interpreter")
	}
	if run == nil || run.Status != gce.RunFailed {
		t.Fatalf("run = %+v", run)
	}
	if job := GetJob(run.JobID); !job.Done || job.Error == "" {
		t.Errorf("job = %+v", job)
	}
}

func TestInitDBTerminatesInterruptedRuns(t *testing.T) {
	exp := setupTest(t)
	run, job, err := NewRun(exp.Name, "test-train")
	if err != nil {
		t.Fatal(err)
	}
	InitDB(false)

	run = GetRun(run.UUID)
	if run.Status != gce.RunTerminated {
		t.Errorf("status = %s", run.Status)
	}
	if job = GetJob(job.ID); !job.Done || job.Error != "terminated" {
		t.Errorf("job = %+v", job)
	}
	// a checkpoint left on disk by the interrupted run must not be picked up
	fname := filepath.Join(Config.ScriptsDir, testCheckpoint)
	os.MkdirAll(filepath.Dir(fname), 0755)
	os.WriteFile(fname, []byte("partial"), 0644)
	if _, err := ResolveCheckpoint(exp, "test-train"); !errors.Is(err, ErrStaleCheckpoint) {
		t.Errorf("ResolveCheckpoint = %v", err)
	}
}

func TestResolveCheckpointWithoutRuns(t *testing.T) {
	exp := setupTest(t)
	if _, err := ResolveCheckpoint(exp, "test-train"); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("ResolveCheckpoint = %v; want ErrNoCheckpoint", err)
	}

	fname := filepath.Join(Config.ScriptsDir, testCheckpoint)
	os.MkdirAll(filepath.Dir(fname), 0755)
	os.WriteFile(fname, []byte("pretrained"), 0644)
	path, err := ResolveCheckpoint(exp, "test-train")
	if err != nil || path != testCheckpoint {
		t.Errorf("ResolveCheckpoint = %q, %v", path, err)
	}

	if _, err := ResolveCheckpoint(exp, "test-consumer"); err == nil {
		t.Errorf("op without checkpoints resolved")
	}
}

func TestFigureRunChecksOutputDir(t *testing.T) {
	exp := setupTest(t)
	run := startAndWait(t, exp, "test-nofigures")
	if run.Status != gce.RunFailed || !strings.Contains(run.Error, "figure directory") {
		t.Errorf("status = %s, error = %q", run.Status, run.Error)
	}
	run = startAndWait(t, exp, "test-figures")
	if run.Status != gce.RunDone || run.Checkpoint != "" {
		t.Errorf("status = %s, checkpoint = %q, error = %q", run.Status, run.Checkpoint, run.Error)
	}
}
