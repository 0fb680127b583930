package app

import (
	"github.com/gcexplain/gcexplain/gce"

	"database/sql"
	"errors"
	"fmt"
	"time"

	gouuid "github.com/google/uuid"
)

var ErrRunActive = errors.New("a run of this op is already active")

type DBRun struct {gce.Run}

const RunQuery = "SELECT uuid, job_id, experiment, op, checkpoint, status, start_time, finish_time, metrics, error FROM runs"

func runListHelper(rows *Rows) []*DBRun {
	runs := []*DBRun{}
	for rows.Next() {
		var run DBRun
		var finishTime sql.NullTime
		var metricsRaw string
		rows.Scan(&run.UUID, &run.JobID, &run.Experiment, &run.Op, &run.Checkpoint, &run.Status, &run.StartTime, &finishTime, &metricsRaw, &run.Error)
		if finishTime.Valid {
			t := finishTime.Time
			run.FinishTime = &t
		}
		if metricsRaw != "" {
			gce.JsonUnmarshal([]byte(metricsRaw), &run.Metrics)
		}
		runs = append(runs, &run)
	}
	return runs
}

// List runs, newest first. If experiment is empty, runs of all experiments are listed.
func ListRuns(experiment string) []*DBRun {
	if experiment == "" {
		rows := db.Query(RunQuery + " ORDER BY rowid DESC")
		return runListHelper(rows)
	}
	rows := db.Query(RunQuery + " WHERE experiment = ? ORDER BY rowid DESC", experiment)
	return runListHelper(rows)
}

// Runs of one op for one experiment, newest first.
func ListOpRuns(experiment string, op string) []*DBRun {
	rows := db.Query(RunQuery + " WHERE experiment = ? AND op = ? ORDER BY rowid DESC", experiment, op)
	return runListHelper(rows)
}

func GetRun(uuid string) *DBRun {
	rows := db.Query(RunQuery + " WHERE uuid = ?", uuid)
	runs := runListHelper(rows)
	if len(runs) == 1 {
		return runs[0]
	} else {
		return nil
	}
}

// Create the job and run rows for a new run.
// Fails with ErrRunActive if the same op is already running for the experiment.
func NewRun(experiment string, op string) (*DBRun, *DBJob, error) {
	uuid := gouuid.New().String()
	var jobID int
	var err error
	db.Transaction(func(tx Tx) {
		var count int
		tx.QueryRow("SELECT COUNT(*) FROM runs WHERE experiment = ? AND op = ? AND status = ?", experiment, op, gce.RunRunning).Scan(&count)
		if count > 0 {
			err = fmt.Errorf("%s/%s: %w", experiment, op, ErrRunActive)
			return
		}
		jobID = newJobTx(tx, fmt.Sprintf("%s %s", op, experiment), "run", op, uuid)
		tx.Exec(
			"INSERT INTO runs (uuid, job_id, experiment, op, status, start_time) VALUES (?, ?, ?, ?, ?, ?)",
			uuid, jobID, experiment, op, gce.RunRunning, time.Now().UTC(),
		)
	})
	if err != nil {
		return nil, nil, err
	}
	return GetRun(uuid), GetJob(jobID), nil
}

// Record the outcome of a run. checkpoint is empty unless the run produced a verified checkpoint.
func (run *DBRun) Finish(status string, checkpoint string, metrics gce.Metrics, err error) {
	var errStr, metricsStr string
	if err != nil {
		errStr = err.Error()
	}
	if len(metrics) > 0 {
		metricsStr = string(gce.JsonMarshal(metrics))
	}
	now := time.Now().UTC()
	db.Exec(
		"UPDATE runs SET status = ?, checkpoint = ?, metrics = ?, error = ?, finish_time = ? WHERE uuid = ?",
		status, checkpoint, metricsStr, errStr, now, run.UUID,
	)
	run.Status = status
	run.Checkpoint = checkpoint
	run.Metrics = metrics
	run.Error = errStr
	run.FinishTime = &now
}
