package app

import (
	"github.com/gcexplain/gcexplain/gce"

	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// How often buffered output lines are folded into the job state.
var FlushInterval = time.Second

// Tracks a script process while it runs.
type runHandle struct {
	Run *DBRun
	Job *DBJob
	Exp gce.Experiment
	Op *gce.TrainOp
	prefix string

	// serializes job state writes
	flushMu sync.Mutex

	mu sync.Mutex
	cmd *gce.Cmd
	jobOp *gce.RunJobOp
	pending []string
	stopped bool
	done chan struct{}
}

func (h *runHandle) addLine(line string) {
	h.mu.Lock()
	h.pending = append(h.pending, line)
	h.mu.Unlock()
	broadcastRun(h.Run.UUID, "line", gce.RunLine{UUID: h.Run.UUID, Line: line})
}

func (h *runHandle) flush() {
	h.flushMu.Lock()
	defer h.flushMu.Unlock()
	h.mu.Lock()
	lines := h.pending
	h.pending = nil
	if len(lines) == 0 {
		h.mu.Unlock()
		return
	}
	state := h.jobOp.Update(lines)
	h.mu.Unlock()
	h.Job.UpdateState(string(gce.JsonMarshal(state)))
}

func (h *runHandle) Stop() error {
	h.mu.Lock()
	h.stopped = true
	cmd := h.cmd
	h.mu.Unlock()
	if cmd == nil {
		return nil
	}
	log.Printf("[%s] stopping on user request", h.prefix)
	return cmd.Stop()
}

func (h *runHandle) flushLoop() {
	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.flush()
		case <-h.done:
			return
		}
	}
}

// Wait for the process, then record the outcome on the run and the job.
func (h *runHandle) wait() {
	err := h.cmd.Wait()
	close(h.done)
	h.flush()

	h.mu.Lock()
	stopped := h.stopped
	metrics := h.jobOp.Metrics
	h.mu.Unlock()

	status := gce.RunDone
	var checkpoint string
	if stopped {
		status = gce.RunFailed
		err = fmt.Errorf("stopped by user")
	} else if err != nil {
		status = gce.RunFailed
	} else if h.Op.Checkpoint != nil {
		checkpoint = h.Op.Checkpoint(h.Exp)
		if verr := verifyCheckpoint(checkpoint, h.Run.StartTime); verr != nil {
			status = gce.RunFailed
			checkpoint = ""
			err = verr
		}
	}
	if status == gce.RunDone && h.Op.FigureDir != nil {
		dir := h.Op.FigureDir(h.Exp)
		figures, ferr := gce.ListFigures(scriptsPath(dir), gce.FigureExt)
		if ferr != nil {
			status = gce.RunFailed
			err = fmt.Errorf("figure directory %s: %v", dir, ferr)
		} else {
			log.Printf("[%s] %d figures in %s", h.prefix, len(figures), dir)
		}
	}
	h.finish(status, checkpoint, metrics, err)
}

func (h *runHandle) finish(status string, checkpoint string, metrics gce.Metrics, err error) {
	if err != nil {
		log.Printf("[%s] run %s failed: %v", h.prefix, h.Run.UUID, err)
	} else {
		log.Printf("[%s] run %s done", h.prefix, h.Run.UUID)
	}
	h.Run.Finish(status, checkpoint, metrics, err)
	h.Job.SetDone(err)
	h.Job.DetachOp()
	broadcastRun(h.Run.UUID, "done", h.Run.Run)
}

// StartRun launches op for exp in the background.
// The returned run is in the running state unless the script could not be started.
func StartRun(exp gce.Experiment, opName string) (*DBRun, error) {
	op := gce.GetTrainOp(opName)
	if op == nil {
		return nil, fmt.Errorf("unknown op %s", opName)
	}
	args, err := op.Args(exp, ResolveCheckpoint)
	if err != nil {
		return nil, err
	}
	run, job, err := NewRun(exp.Name, opName)
	if err != nil {
		return nil, err
	}

	h := &runHandle{
		Run: run,
		Job: job,
		Exp: exp,
		Op: op,
		prefix: fmt.Sprintf("run %s/%s", exp.Name, opName),
		jobOp: &gce.RunJobOp{Parser: op.Metrics},
		done: make(chan struct{}),
	}
	job.AttachOp(h)
	log.Printf("[%s] starting run %s", h.prefix, run.UUID)
	cmd, err := gce.Command(h.prefix, gce.CommandOptions{
		Dir: Config.ScriptsDir,
		Env: append([]string{"PYTHONUNBUFFERED=1"}, Config.Env...),
		OnLine: h.addLine,
	}, Config.Python, args...)
	if err != nil {
		close(h.done)
		h.finish(gce.RunFailed, "", nil, err)
		return run, err
	}
	h.mu.Lock()
	h.cmd = cmd
	stopped := h.stopped
	h.mu.Unlock()
	if stopped {
		cmd.Stop()
	}
	go h.flushLoop()
	go h.wait()
	return run, nil
}

// Block until the run leaves the running state or the timeout expires.
func WaitRun(uuid string, timeout time.Duration) *DBRun {
	deadline := time.Now().Add(timeout)
	for {
		run := GetRun(uuid)
		if run == nil || run.Finished() || time.Now().After(deadline) {
			return run
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func init() {
	Router.HandleFunc("/runs", func(w http.ResponseWriter, r *http.Request) {
		gce.JsonResponse(w, ListRuns(r.URL.Query().Get("experiment")))
	}).Methods("GET")

	Router.HandleFunc("/runs/{uuid}", func(w http.ResponseWriter, r *http.Request) {
		run := GetRun(mux.Vars(r)["uuid"])
		if run == nil {
			http.Error(w, "no such run", 404)
			return
		}
		gce.JsonResponse(w, run)
	}).Methods("GET")

	Router.HandleFunc("/experiments/{name}/runs", func(w http.ResponseWriter, r *http.Request) {
		exp := GetExperiment(mux.Vars(r)["name"])
		if exp == nil {
			http.Error(w, "no such experiment", 404)
			return
		}
		gce.JsonResponse(w, ListRuns(exp.Name))
	}).Methods("GET")

	Router.HandleFunc("/experiments/{name}/runs", func(w http.ResponseWriter, r *http.Request) {
		exp := GetExperiment(mux.Vars(r)["name"])
		if exp == nil {
			http.Error(w, "no such experiment", 404)
			return
		}
		var request gce.StartRunRequest
		if err := gce.ParseJsonRequest(w, r, &request); err != nil {
			return
		}
		if gce.GetTrainOp(request.Op) == nil {
			http.Error(w, fmt.Sprintf("unknown op %s", request.Op), 400)
			return
		}
		run, err := StartRun(*exp, request.Op)
		if errors.Is(err, ErrRunActive) || errors.Is(err, ErrStaleCheckpoint) || errors.Is(err, ErrNoCheckpoint) {
			http.Error(w, err.Error(), 409)
			return
		} else if err != nil && run == nil {
			http.Error(w, err.Error(), 400)
			return
		}
		// a run that failed to start is still reported, with its error recorded
		gce.JsonResponse(w, run)
	}).Methods("POST")
}
