package app

import (
	_ "github.com/mattn/go-sqlite3"

	"database/sql"
	"log"

	// use deadlock detector mutexes here since deadlocks in database operations
	// will be common
	sync "github.com/sasha-s/go-deadlock"
)

const DbDebug bool = false

var db *Database

type Database struct {
	db *sql.DB
	mu sync.Mutex
}

func checkErr(err error) {
	if err != nil {
		panic(err)
	}
}

// Open the sqlite3 database at fname and make it the package database.
func OpenDB(fname string) {
	sdb, err := sql.Open("sqlite3", fname+"?_busy_timeout=5000")
	if err != nil {
		panic(err)
	}
	// sqlite allows only one writer; the mutex serializes us anyway
	sdb.SetMaxOpenConns(1)
	if db != nil {
		db.Close()
	}
	db = &Database{db: sdb}
}

func (this *Database) Close() {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.db.Close()
}

func (this *Database) Query(q string, args ...interface{}) *Rows {
	this.mu.Lock()
	if DbDebug {
		log.Printf("[db] Query: %v", q)
	}
	rows, err := this.db.Query(q, args...)
	if err != nil {
		this.mu.Unlock()
		panic(err)
	}
	return &Rows{this, true, rows}
}

func (this *Database) QueryRow(q string, args ...interface{}) *Row {
	this.mu.Lock()
	if DbDebug {
		log.Printf("[db] QueryRow: %v", q)
	}
	row := this.db.QueryRow(q, args...)
	return &Row{this, true, row}
}

func (this *Database) Exec(q string, args ...interface{}) Result {
	this.mu.Lock()
	defer this.mu.Unlock()
	if DbDebug {
		log.Printf("[db] Exec: %v", q)
	}
	result, err := this.db.Exec(q, args...)
	checkErr(err)
	return Result{result}
}

func (this *Database) Transaction(f func(tx Tx)) {
	this.mu.Lock()
	defer this.mu.Unlock()
	f(Tx{this})
}

type Rows struct {
	db     *Database
	locked bool
	rows   *sql.Rows
}

func (r *Rows) Close() {
	err := r.rows.Close()
	if r.locked {
		r.db.mu.Unlock()
		r.locked = false
	}
	checkErr(err)
}

func (r *Rows) Next() bool {
	hasNext := r.rows.Next()
	if !hasNext {
		r.rows.Close()
		if r.locked {
			r.db.mu.Unlock()
			r.locked = false
		}
	}
	return hasNext
}

// On a scan error the rows are closed before panicking, so a recovered panic
// does not leave the database locked.
func (r *Rows) Scan(dest ...interface{}) {
	err := r.rows.Scan(dest...)
	if err != nil {
		r.rows.Close()
		if r.locked {
			r.db.mu.Unlock()
			r.locked = false
		}
	}
	checkErr(err)
}

type Row struct {
	db     *Database
	locked bool
	row    *sql.Row
}

func (r *Row) Scan(dest ...interface{}) {
	err := r.row.Scan(dest...)
	if r.locked {
		r.db.mu.Unlock()
		r.locked = false
	}
	checkErr(err)
}

type Result struct {
	result sql.Result
}

func (r Result) LastInsertId() int {
	id, err := r.result.LastInsertId()
	checkErr(err)
	return int(id)
}

func (r Result) RowsAffected() int {
	count, err := r.result.RowsAffected()
	checkErr(err)
	return int(count)
}

type Tx struct {
	db *Database
}

func (tx Tx) Query(q string, args ...interface{}) *Rows {
	rows, err := tx.db.db.Query(q, args...)
	checkErr(err)
	return &Rows{tx.db, false, rows}
}

func (tx Tx) QueryRow(q string, args ...interface{}) *Row {
	row := tx.db.db.QueryRow(q, args...)
	return &Row{tx.db, false, row}
}

func (tx Tx) Exec(q string, args ...interface{}) Result {
	result, err := tx.db.db.Exec(q, args...)
	checkErr(err)
	return Result{result}
}
