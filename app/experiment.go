package app

import (
	"github.com/gcexplain/gcexplain/gce"

	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/mux"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var experiments = make(map[string]gce.Experiment)
var experimentsMu sync.Mutex

// Replace the experiment registry.
func SetExperiments(list []gce.Experiment) {
	experimentsMu.Lock()
	defer experimentsMu.Unlock()
	experiments = make(map[string]gce.Experiment)
	for _, exp := range list {
		experiments[exp.Name] = exp
	}
}

func GetExperiment(name string) *gce.Experiment {
	experimentsMu.Lock()
	defer experimentsMu.Unlock()
	exp, ok := experiments[name]
	if !ok {
		return nil
	}
	return &exp
}

func ListExperiments() []gce.Experiment {
	experimentsMu.Lock()
	defer experimentsMu.Unlock()
	list := []gce.Experiment{}
	for _, exp := range experiments {
		list = append(list, exp)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

func summarize(values []float64) gce.MetricSummary {
	summary := gce.MetricSummary{Count: len(values)}
	if len(values) == 0 {
		return summary
	}
	summary.Min = floats.Min(values)
	summary.Max = floats.Max(values)
	if len(values) == 1 {
		summary.Mean = values[0]
		return summary
	}
	summary.Mean, summary.StdDev = stat.MeanStdDev(values, nil)
	return summary
}

// Summarize the metrics of every successful run of the experiment.
func SummarizeExperiment(name string) gce.ExperimentSummary {
	values := make(map[string]map[string][]float64)
	for _, run := range ListRuns(name) {
		if run.Status != gce.RunDone {
			continue
		}
		for metric, x := range run.Metrics {
			if values[run.Op] == nil {
				values[run.Op] = make(map[string][]float64)
			}
			values[run.Op][metric] = append(values[run.Op][metric], x)
		}
	}
	summary := gce.ExperimentSummary{
		Experiment: name,
		Ops: make(map[string]map[string]gce.MetricSummary),
	}
	for op, metrics := range values {
		summary.Ops[op] = make(map[string]gce.MetricSummary)
		for metric, xs := range metrics {
			summary.Ops[op][metric] = summarize(xs)
		}
	}
	return summary
}

func init() {
	Router.HandleFunc("/experiments", func(w http.ResponseWriter, r *http.Request) {
		gce.JsonResponse(w, ListExperiments())
	}).Methods("GET")

	Router.HandleFunc("/experiments/{name}", func(w http.ResponseWriter, r *http.Request) {
		exp := GetExperiment(mux.Vars(r)["name"])
		if exp == nil {
			http.Error(w, "no such experiment", 404)
			return
		}
		gce.JsonResponse(w, exp)
	}).Methods("GET")

	Router.HandleFunc("/experiments/{name}/summary", func(w http.ResponseWriter, r *http.Request) {
		exp := GetExperiment(mux.Vars(r)["name"])
		if exp == nil {
			http.Error(w, "no such experiment", 404)
			return
		}
		gce.JsonResponse(w, SummarizeExperiment(exp.Name))
	}).Methods("GET")
}
