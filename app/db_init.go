package app

import (
	"github.com/gcexplain/gcexplain/gce"

	"log"
)

// Initialize the database on startup with cleanup operations.
// If init is true, we also first create the schema.
func InitDB(init bool) {
	if init {
		db.Exec(`CREATE TABLE IF NOT EXISTS jobs (
			id INTEGER PRIMARY KEY ASC,
			name TEXT,
			-- e.g. 'run'
			type TEXT,
			-- the op that produced the job
			op TEXT,
			metadata TEXT,
			start_time TIMESTAMP,
			state TEXT DEFAULT '',
			done INTEGER DEFAULT 0,
			error TEXT DEFAULT ''
		)`)
		db.Exec(`CREATE TABLE IF NOT EXISTS runs (
			uuid TEXT PRIMARY KEY,
			job_id INTEGER REFERENCES jobs(id),
			experiment TEXT,
			op TEXT,
			checkpoint TEXT DEFAULT '',
			-- 'running', 'done', 'failed' or 'terminated'
			status TEXT,
			start_time TIMESTAMP,
			finish_time TIMESTAMP,
			metrics TEXT DEFAULT '',
			error TEXT DEFAULT ''
		)`)
		db.Exec(`CREATE INDEX IF NOT EXISTS runs_by_op ON runs (experiment, op, start_time)`)
	}

	// now run some database cleanup steps

	// jobs and runs that were running when we went down can never finish,
	// and whatever checkpoint they left behind may be partial
	res := db.Exec("UPDATE runs SET status = ?, error = 'terminated' WHERE status = ?", gce.RunTerminated, gce.RunRunning)
	if n := res.RowsAffected(); n > 0 {
		log.Printf("[db] marked %d interrupted runs as terminated", n)
	}
	db.Exec("UPDATE jobs SET error = 'terminated', done = 1 WHERE done = 0")
}
