package gce

import (
	"time"
)

type Job struct {
	ID int
	Name string
	Type string
	Op string
	Metadata string
	StartTime time.Time
	State string

	// If the job succeeds, Done=true and Error="".
	// If it fails, then Done=true and Error is set.
	// If Done=false it implies the job is still running.
	Done bool
	Error string
}

type JobOp interface {
	// Returns an updated state given the newly received lines from the job output.
	Update(lines []string) interface{}
}

// JobOp implementation that just keeps the latest 1000 lines of output
const TailJobOpNumLines int = 1000
type TailJobOp struct {
	Lines []string
	numLines int
}
func NewTailJobOp(numLines int) *TailJobOp {
	return &TailJobOp{numLines: numLines}
}
func (op *TailJobOp) Update(lines []string) interface{} {
	if op.numLines == 0 {
		op.numLines = TailJobOpNumLines
	}

	// add lines to op.Lines until we exceed numLines
	if len(op.Lines) < op.numLines {
		n := len(lines)
		if n > op.numLines - len(op.Lines) {
			n = op.numLines - len(op.Lines)
		}
		op.Lines = append(op.Lines, lines[0:n]...)
		lines = lines[n:]
	}

	// now that op.Lines is full, add as many as we can
	if len(lines) > op.numLines {
		lines = lines[len(lines)-op.numLines:]
	}
	if len(lines) > 0 {
		// shift to the left
		copy(op.Lines[0:], op.Lines[len(lines):])
		// and then insert
		copy(op.Lines[len(op.Lines)-len(lines):], lines)
	}
	return op.Lines
}

// Metrics parsed out of a script's output, e.g. {"Test": 0.99, "Valid": 0.98}.
type Metrics map[string]float64

// Extracts metrics from one output line; ok is false if the line has none.
type MetricsParser func(line string) (metrics Metrics, ok bool)

// JobOp for training scripts: keeps the output tail and the latest parsed metrics.
type RunJobOp struct {
	Tail TailJobOp
	Parser MetricsParser
	Metrics Metrics
}

type RunJobState struct {
	Lines []string
	Metrics Metrics
}

func (op *RunJobOp) Update(lines []string) interface{} {
	op.Tail.Update(lines)
	if op.Parser != nil {
		for _, line := range lines {
			metrics, ok := op.Parser(line)
			if !ok {
				continue
			}
			if op.Metrics == nil {
				op.Metrics = make(Metrics)
			}
			for k, v := range metrics {
				op.Metrics[k] = v
			}
		}
	}
	return RunJobState{
		Lines: op.Tail.Lines,
		Metrics: op.Metrics,
	}
}
