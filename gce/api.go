package gce

import (
	"time"
)

const (
	RunRunning = "running"
	RunDone = "done"
	RunFailed = "failed"
	// left running when the coordinator went down
	RunTerminated = "terminated"
)

// One execution of an op for an experiment.
type Run struct {
	UUID string
	JobID int
	Experiment string
	Op string
	// registered only once the run finished and the file was verified fresh
	Checkpoint string
	Status string
	StartTime time.Time
	FinishTime *time.Time
	Metrics Metrics
	Error string
}

func (run Run) Finished() bool {
	return run.Status != RunRunning
}

// client->coordinator
type StartRunRequest struct {
	Experiment string
	Op string
}

// Summary statistics over the finished runs of an op.
type MetricSummary struct {
	Count int
	Mean float64
	StdDev float64
	Min float64
	Max float64
}

type ExperimentSummary struct {
	Experiment string
	// op name -> metric name -> summary
	Ops map[string]map[string]MetricSummary
}

// socket.io payload for one output line of a run
type RunLine struct {
	UUID string
	Line string
}
