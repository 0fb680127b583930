package main

import (
	"github.com/gcexplain/gcexplain/app"
	"github.com/gcexplain/gcexplain/gce"

	_ "github.com/gcexplain/gcexplain/ops"

	"github.com/googollee/go-socket.io"

	"flag"
	"log"
	"net/http"
	"strings"
)

func main() {
	addr := flag.String("addr", ":8080", "bind address")
	dbPath := flag.String("db", "./gce.sqlite3", "sqlite3 database path")
	initdb := flag.Bool("initdb", true, "create the database schema if it is missing")
	experimentsPath := flag.String("experiments", "experiments.yaml", "experiment definitions")
	scriptsDir := flag.String("scripts", ".", "directory containing the training scripts")
	python := flag.String("python", "python3", "python interpreter used to run the scripts")
	env := flag.String("env", "", "comma-separated KEY=VALUE pairs passed to the scripts")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	app.Config.ScriptsDir = *scriptsDir
	app.Config.Python = *python
	if *env != "" {
		app.Config.Env = strings.Split(*env, ",")
	}

	experiments, err := gce.LoadExperiments(*experimentsPath)
	if err != nil {
		panic(err)
	}
	app.SetExperiments(experiments)
	log.Printf("loaded %d experiments from %s", len(experiments), *experimentsPath)

	app.OpenDB(*dbPath)
	app.InitDB(*initdb)

	server, err := socketio.NewServer(nil)
	if err != nil {
		panic(err)
	}
	server.OnConnect("/", func(s socketio.Conn) error {
		return nil
	})
	for _, f := range app.SetupFuncs {
		f(server)
	}

	go server.Serve()
	defer server.Close()
	http.Handle("/socket.io/", server)
	http.Handle("/", app.Router)
	log.Printf("starting on %s", *addr)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		panic(err)
	}
}
