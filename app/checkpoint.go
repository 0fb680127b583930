package app

import (
	"github.com/gcexplain/gcexplain/gce"

	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

var ErrNoCheckpoint = errors.New("no checkpoint available")
var ErrStaleCheckpoint = errors.New("checkpoint may be stale")

// mtime resolution of some filesystems is one or two seconds
const checkpointSlack = 2 * time.Second

func scriptsPath(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(Config.ScriptsDir, rel)
}

// Check that a run starting at startTime actually wrote the checkpoint.
func verifyCheckpoint(rel string, startTime time.Time) error {
	fi, err := os.Stat(scriptsPath(rel))
	if os.IsNotExist(err) {
		return fmt.Errorf("checkpoint %s was not written", rel)
	} else if err != nil {
		return err
	}
	if fi.ModTime().Add(checkpointSlack).Before(startTime) {
		return fmt.Errorf("checkpoint %s predates the run (%v < %v): %w", rel, fi.ModTime(), startTime, ErrStaleCheckpoint)
	}
	return nil
}

// ResolveCheckpoint returns the checkpoint produced by the newest run of op
// for exp, relative to the scripts directory.
//
// It refuses when the newest run is still running, failed, or was terminated,
// since the file on disk may then be partial or left over from an older run.
// If the op was never run through us, a checkpoint already on disk is used.
func ResolveCheckpoint(exp gce.Experiment, opName string) (string, error) {
	op := gce.GetTrainOp(opName)
	if op == nil || op.Checkpoint == nil {
		return "", fmt.Errorf("op %s does not produce checkpoints", opName)
	}
	runs := ListOpRuns(exp.Name, opName)
	if len(runs) == 0 {
		rel := op.Checkpoint(exp)
		if gce.FileExists(scriptsPath(rel)) {
			log.Printf("[checkpoint] %s/%s has no recorded runs, using existing %s", exp.Name, opName, rel)
			return rel, nil
		}
		return "", fmt.Errorf("%s/%s: %w", exp.Name, opName, ErrNoCheckpoint)
	}
	latest := runs[0]
	switch latest.Status {
	case gce.RunRunning:
		return "", fmt.Errorf("%s/%s: run %s is still running: %w", exp.Name, opName, latest.UUID, ErrStaleCheckpoint)
	case gce.RunFailed, gce.RunTerminated:
		return "", fmt.Errorf("%s/%s: latest run %s %s: %w", exp.Name, opName, latest.UUID, latest.Status, ErrStaleCheckpoint)
	}
	if latest.Checkpoint == "" {
		return "", fmt.Errorf("%s/%s: %w", exp.Name, opName, ErrNoCheckpoint)
	}
	if !gce.FileExists(scriptsPath(latest.Checkpoint)) {
		return "", fmt.Errorf("%s/%s: checkpoint %s has been removed: %w", exp.Name, opName, latest.Checkpoint, ErrNoCheckpoint)
	}
	return latest.Checkpoint, nil
}
