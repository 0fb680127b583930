package app

import (
	"github.com/gcexplain/gcexplain/gce"

	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

type DBJob struct {gce.Job}

const JobFastQuery = "SELECT id, name, type, op, metadata, start_time, done, error, '' FROM jobs"
const JobQuery = "SELECT id, name, type, op, metadata, start_time, done, error, state FROM jobs"

func jobListHelper(rows *Rows) []*DBJob {
	jobs := []*DBJob{}
	for rows.Next() {
		var j DBJob
		rows.Scan(&j.ID, &j.Name, &j.Type, &j.Op, &j.Metadata, &j.StartTime, &j.Done, &j.Error, &j.State)
		jobs = append(jobs, &j)
	}
	return jobs
}

func ListJobs() []*DBJob {
	rows := db.Query(JobFastQuery + " ORDER BY id DESC")
	return jobListHelper(rows)
}

func GetJob(id int) *DBJob {
	rows := db.Query(JobQuery + " WHERE id = ?", id)
	jobs := jobListHelper(rows)
	if len(jobs) == 1 {
		return jobs[0]
	} else {
		return nil
	}
}

func newJobTx(tx Tx, name string, t string, op string, metadata string) int {
	res := tx.Exec(
		"INSERT INTO jobs (name, type, op, metadata, start_time) VALUES (?, ?, ?, ?, ?)",
		name, t, op, metadata, time.Now().UTC(),
	)
	return res.LastInsertId()
}

func (j *DBJob) UpdateState(state string) {
	j.State = state
	db.Exec("UPDATE jobs SET state = ? WHERE id = ?", state, j.ID)
}

func (j *DBJob) SetDone(err error) {
	var errStr string
	if err != nil {
		errStr = err.Error()
	}
	j.Done = true
	j.Error = errStr
	db.Exec("UPDATE jobs SET done = 1, error = ? WHERE id = ?", errStr, j.ID)
}

// Something attached to a running job that can be asked to stop.
type StoppableJob interface {
	Stop() error
}

var runningJobs = make(map[int]StoppableJob)
var jobMu sync.Mutex

func (j *DBJob) AttachOp(op StoppableJob) {
	jobMu.Lock()
	runningJobs[j.ID] = op
	jobMu.Unlock()
}

func (j *DBJob) DetachOp() {
	jobMu.Lock()
	delete(runningJobs, j.ID)
	jobMu.Unlock()
}

func getRunningJob(id int) StoppableJob {
	jobMu.Lock()
	defer jobMu.Unlock()
	return runningJobs[id]
}

func init() {
	Router.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		gce.JsonResponse(w, ListJobs())
	}).Methods("GET")

	Router.HandleFunc("/jobs/{job_id}", func(w http.ResponseWriter, r *http.Request) {
		jobID, err := strconv.Atoi(mux.Vars(r)["job_id"])
		if err != nil {
			http.Error(w, "bad job id", 400)
			return
		}
		job := GetJob(jobID)
		if job == nil {
			http.Error(w, "no such job", 404)
			return
		}
		gce.JsonResponse(w, job)
	}).Methods("GET")

	Router.HandleFunc("/jobs/{job_id}/stop", func(w http.ResponseWriter, r *http.Request) {
		jobID, err := strconv.Atoi(mux.Vars(r)["job_id"])
		if err != nil {
			http.Error(w, "bad job id", 400)
			return
		}
		job := getRunningJob(jobID)
		if job == nil {
			http.Error(w, "no such running job", 404)
			return
		}
		err = job.Stop()
		if err != nil {
			log.Printf("[job-stop] error stopping job: %v", err)
			http.Error(w, fmt.Sprintf("error stopping job: %v", err), 400)
			return
		}
	}).Methods("POST")
}
