package main

import (
	"github.com/gcexplain/gcexplain/gce"

	"github.com/cheggaaa/pb/v3"

	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

const usage = `usage: gcectl [-url URL] COMMAND [ARGS]

commands:
  experiments                   list configured experiments
  run EXPERIMENT OP [-wait]     start an op (classifier, cvae, figures, params, ablation)
  pipeline EXPERIMENT [-ops L]  run classifier, cvae and figures (or L) in order
  runs [-experiment NAME]       list runs, newest first
  summary EXPERIMENT            metric summary over finished runs
  show PATH                     display one image
  show-all DIR [-sheet FILE]    display every .png in DIR, optionally as a contact sheet
`

var coordinatorURL string

func fail(err error) {
	fmt.Fprintf(os.Stderr, "gcectl: %v\n", err)
	os.Exit(1)
}

func main() {
	flag.StringVar(&coordinatorURL, "url", "http://127.0.0.1:8080", "coordinator URL")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	var err error
	switch cmd {
	case "experiments":
		err = listExperiments()
	case "run":
		err = runCmd(args)
	case "pipeline":
		err = pipelineCmd(args)
	case "runs":
		err = runsCmd(args)
	case "summary":
		err = summaryCmd(args)
	case "show":
		err = showCmd(args)
	case "show-all":
		err = showAllCmd(args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fail(err)
	}
}

func listExperiments() error {
	var experiments []gce.Experiment
	if err := gce.JsonGet(coordinatorURL, "/experiments", &experiments); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDATASET\tCLASSES\tK\tL\tFIGURES")
	for _, exp := range experiments {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", exp.Name, exp.Dataset, strings.Join(exp.ClassArgs(), ","), exp.CVAE.K, exp.CVAE.L, exp.FigureDir())
	}
	return w.Flush()
}

func startRun(experiment string, op string) (*gce.Run, error) {
	var run gce.Run
	request := gce.StartRunRequest{Experiment: experiment, Op: op}
	err := gce.JsonPost(coordinatorURL, fmt.Sprintf("/experiments/%s/runs", experiment), request, &run)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func waitRun(uuid string) (*gce.Run, error) {
	for {
		var run gce.Run
		if err := gce.JsonGet(coordinatorURL, "/runs/"+uuid, &run); err != nil {
			return nil, err
		}
		if run.Finished() {
			return &run, nil
		}
		time.Sleep(2 * time.Second)
	}
}

func printRun(run *gce.Run) {
	fmt.Printf("%s %s/%s %s", run.UUID, run.Experiment, run.Op, run.Status)
	if run.Checkpoint != "" {
		fmt.Printf(" checkpoint=%s", run.Checkpoint)
	}
	var names []string
	for name := range run.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf(" %s=%.4f", name, run.Metrics[name])
	}
	if run.Error != "" {
		fmt.Printf(" error=%q", run.Error)
	}
	fmt.Println()
}

func runErr(run *gce.Run) error {
	if run.Status != gce.RunDone {
		return fmt.Errorf("%s/%s %s: %s", run.Experiment, run.Op, run.Status, run.Error)
	}
	return nil
}

// Parse flags given before, between or after the positional arguments,
// e.g. "run mnist_38 classifier -wait".
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	wait := fs.Bool("wait", false, "wait for the run to finish")
	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 2 {
		return fmt.Errorf("run needs EXPERIMENT and OP")
	}
	run, err := startRun(positional[0], positional[1])
	if err != nil {
		return err
	}
	if *wait && !run.Finished() {
		run, err = waitRun(run.UUID)
		if err != nil {
			return err
		}
	}
	printRun(run)
	if run.Finished() {
		return runErr(run)
	}
	return nil
}

func pipelineCmd(args []string) error {
	fs := flag.NewFlagSet("pipeline", flag.ContinueOnError)
	opsStr := fs.String("ops", "classifier,cvae,figures", "comma-separated ops to run in order")
	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("pipeline needs EXPERIMENT")
	}
	experiment := positional[0]
	ops := strings.Split(*opsStr, ",")

	bar := pb.StartNew(len(ops))
	var runs []*gce.Run
	for _, op := range ops {
		bar.Set("prefix", fmt.Sprintf("%s/%s ", experiment, op))
		run, err := startRun(experiment, op)
		if err == nil && !run.Finished() {
			run, err = waitRun(run.UUID)
		}
		if err != nil {
			bar.Finish()
			return err
		}
		runs = append(runs, run)
		if err := runErr(run); err != nil {
			bar.Finish()
			for _, run := range runs {
				printRun(run)
			}
			return err
		}
		bar.Increment()
	}
	bar.Finish()
	for _, run := range runs {
		printRun(run)
	}
	var exp gce.Experiment
	if err := gce.JsonGet(coordinatorURL, "/experiments/"+experiment, &exp); err == nil {
		gallery := fmt.Sprintf("%s/gallery/%s", coordinatorURL, exp.Figures.Implementation)
		if exp.Figures.Filetype != "" && exp.Figures.Filetype != "png" {
			gallery += "?ext=" + exp.Figures.Filetype
		}
		fmt.Printf("figures: %s\n", gallery)
	}
	return nil
}

func runsCmd(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	experiment := fs.String("experiment", "", "only list runs of this experiment")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	path := "/runs"
	if *experiment != "" {
		path += "?experiment=" + *experiment
	}
	var runs []gce.Run
	if err := gce.JsonGet(coordinatorURL, path, &runs); err != nil {
		return err
	}
	for i := range runs {
		printRun(&runs[i])
	}
	return nil
}

func summaryCmd(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("summary needs EXPERIMENT")
	}
	var summary gce.ExperimentSummary
	if err := gce.JsonGet(coordinatorURL, fmt.Sprintf("/experiments/%s/summary", args[0]), &summary); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "OP\tMETRIC\tN\tMEAN\tSTDDEV\tMIN\tMAX")
	var ops []string
	for op := range summary.Ops {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		var metrics []string
		for metric := range summary.Ops[op] {
			metrics = append(metrics, metric)
		}
		sort.Strings(metrics)
		for _, metric := range metrics {
			s := summary.Ops[op][metric]
			fmt.Fprintf(w, "%s\t%s\t%d\t%.4f\t%.4f\t%.4f\t%.4f\n", op, metric, s.Count, s.Mean, s.StdDev, s.Min, s.Max)
		}
	}
	return w.Flush()
}

func showCmd(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("show needs PATH")
	}
	return gce.ShowImage(gce.LogRenderer{W: os.Stdout}, args[0])
}

func showAllCmd(args []string) error {
	fs := flag.NewFlagSet("show-all", flag.ContinueOnError)
	sheetPath := fs.String("sheet", "", "also write a contact sheet PNG here")
	columns := fs.Int("columns", 4, "contact sheet columns")
	cell := fs.Int("cell", 256, "contact sheet cell size in pixels")
	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("show-all needs DIR")
	}
	renderers := gce.MultiRenderer{gce.LogRenderer{W: os.Stdout}}
	var sheet *gce.SheetRenderer
	if *sheetPath != "" {
		sheet = gce.NewSheetRenderer(*columns, *cell, *cell)
		renderers = append(renderers, sheet)
	}
	if err := gce.ShowAllImages(renderers, positional[0]); err != nil {
		return err
	}
	if sheet != nil && sheet.Count() > 0 {
		if err := sheet.WriteFile(*sheetPath); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d images)\n", *sheetPath, sheet.Count())
	}
	return nil
}
