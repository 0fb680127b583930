package gce

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	DatasetTraditional = "traditional"
	DatasetFashion = "fashion"
)

// Directory the training scripts save final models into, relative to the scripts dir.
const PretrainedDir = "pretrained_models"

// Directory generate_figures writes into, relative to the scripts dir.
const FiguresDir = "figures"

type ClassifierParams struct {
	ParamSet string `yaml:"param_set" json:"param_set"`
	LR float64 `yaml:"lr" json:"lr"`
	Momentum float64 `yaml:"momentum" json:"momentum"`
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	MaxEpochs int `yaml:"max_epochs" json:"max_epochs"`
	LogDir string `yaml:"log_dir" json:"log_dir"`
	// nil means true, matching the script's add_classes_to_cpt_path default
	AddClassesToPath *bool `yaml:"add_classes_to_path" json:"add_classes_to_path"`
}

type CVAEParams struct {
	TrainSteps int `yaml:"train_steps" json:"train_steps"`
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	LR float64 `yaml:"lr" json:"lr"`
	// samples used to estimate the causal effect
	Nalpha int `yaml:"nalpha" json:"nalpha"`
	Nbeta int `yaml:"nbeta" json:"nbeta"`
	// causal and non-causal latent dimensions
	K int `yaml:"k" json:"k"`
	L int `yaml:"l" json:"l"`
	Lambda float64 `yaml:"lambda" json:"lambda"`
	LogDir string `yaml:"log_dir" json:"log_dir"`
	// train against the classifier checkpoint of this experiment
	UseClassifier *bool `yaml:"use_classifier" json:"use_classifier"`
}

type FigureParams struct {
	Implementation string `yaml:"implementation" json:"implementation"`
	Filetype string `yaml:"filetype" json:"filetype"`
}

type Experiment struct {
	Name string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Dataset string `yaml:"dataset" json:"dataset"`
	Classes []int `yaml:"classes" json:"classes"`
	Classifier ClassifierParams `yaml:"classifier" json:"classifier"`
	CVAE CVAEParams `yaml:"cvae" json:"cvae"`
	Figures FigureParams `yaml:"figures" json:"figures"`
}

type ExperimentFile struct {
	Experiments []Experiment `yaml:"experiments"`
}

func boolPtr(b bool) *bool {
	return &b
}

// Hyper-parameter defaults of the training scripts. Experiments loaded from
// YAML start from these, so an explicit zero in the file is kept.
var DefaultClassifierParams = ClassifierParams{
	ParamSet: "OShaugnessy",
	LR: 0.1,
	Momentum: 0.5,
	BatchSize: 64,
	MaxEpochs: 20,
}

var DefaultCVAEParams = CVAEParams{
	TrainSteps: 8000,
	BatchSize: 64,
	LR: 5e-4,
	Nalpha: 100,
	Nbeta: 25,
	K: 1,
	L: 7,
	Lambda: 0.05,
}

func (e *Experiment) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain Experiment
	p := plain{
		Classifier: DefaultClassifierParams,
		CVAE: DefaultCVAEParams,
	}
	if err := unmarshal(&p); err != nil {
		return err
	}
	*e = Experiment(p)
	return nil
}

// NewExperiment returns an experiment with every parameter at its default.
func NewExperiment(name string, dataset string, classes []int) Experiment {
	e := Experiment{
		Name: name,
		Dataset: dataset,
		Classes: classes,
		Classifier: DefaultClassifierParams,
		CVAE: DefaultCVAEParams,
	}
	e.SetDefaults()
	return e
}

// Fill the fields derived from the name and dataset. Numeric
// hyper-parameters are left alone since zero is a valid setting for some.
func (e *Experiment) SetDefaults() {
	if e.Dataset == "" {
		e.Dataset = DatasetTraditional
	}
	c := &e.Classifier
	if c.ParamSet == "" {
		c.ParamSet = DefaultClassifierParams.ParamSet
	}
	if c.LogDir == "" {
		c.LogDir = e.DatasetPrefix() + "_cnn"
	}
	if c.AddClassesToPath == nil {
		c.AddClassesToPath = boolPtr(true)
	}

	v := &e.CVAE
	if v.LogDir == "" {
		v.LogDir = e.DatasetPrefix() + "_gce"
	}
	if v.UseClassifier == nil {
		v.UseClassifier = boolPtr(true)
	}

	if e.Figures.Implementation == "" {
		e.Figures.Implementation = e.Name
	}
	if e.Figures.Filetype == "" {
		e.Figures.Filetype = "png"
	}
}

func (e Experiment) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("experiment name is empty")
	}
	if strings.ContainsAny(e.Name, "/\\ ") {
		return fmt.Errorf("experiment %s: name must not contain slashes or spaces", e.Name)
	}
	if e.Dataset != DatasetTraditional && e.Dataset != DatasetFashion {
		return fmt.Errorf("experiment %s: unknown dataset %q", e.Name, e.Dataset)
	}
	if len(e.Classes) < 2 {
		return fmt.Errorf("experiment %s: need at least two classes", e.Name)
	}
	seen := make(map[int]bool)
	for _, class := range e.Classes {
		if class < 0 || class > 9 {
			return fmt.Errorf("experiment %s: class %d out of range", e.Name, class)
		}
		if seen[class] {
			return fmt.Errorf("experiment %s: duplicate class %d", e.Name, class)
		}
		seen[class] = true
	}
	if e.Classifier.MaxEpochs <= 0 || e.Classifier.BatchSize <= 0 {
		return fmt.Errorf("experiment %s: classifier epochs and batch size must be positive", e.Name)
	}
	if e.CVAE.TrainSteps <= 0 || e.CVAE.BatchSize <= 0 {
		return fmt.Errorf("experiment %s: cvae steps and batch size must be positive", e.Name)
	}
	if e.CVAE.Lambda < 0 || e.CVAE.LR <= 0 || e.Classifier.LR <= 0 {
		return fmt.Errorf("experiment %s: learning rates must be positive and lambda non-negative", e.Name)
	}
	if e.CVAE.K < 0 || e.CVAE.L < 0 || e.CVAE.K+e.CVAE.L == 0 {
		return fmt.Errorf("experiment %s: bad latent dimensions K=%d L=%d", e.Name, e.CVAE.K, e.CVAE.L)
	}
	if strings.ContainsAny(e.Figures.Implementation, "/\\'") || strings.ContainsAny(e.Figures.Filetype, "/\\'") {
		return fmt.Errorf("experiment %s: bad figure implementation or filetype", e.Name)
	}
	return nil
}

func (e Experiment) DatasetPrefix() string {
	if e.Dataset == DatasetFashion {
		return "fmnist"
	}
	return "mnist"
}

// Sorted classes joined without separator, e.g. "038".
func (e Experiment) ClassesString() string {
	classes := append([]int{}, e.Classes...)
	sort.Ints(classes)
	var sb strings.Builder
	for _, class := range classes {
		sb.WriteString(strconv.Itoa(class))
	}
	return sb.String()
}

// Classes as separate command-line arguments, in configured order.
func (e Experiment) ClassArgs() []string {
	var args []string
	for _, class := range e.Classes {
		args = append(args, strconv.Itoa(class))
	}
	return args
}

// The directory name the classifier script saves under, e.g. mnist_cnn_38.
func (e Experiment) ClassifierLogDir() string {
	if e.Classifier.AddClassesToPath != nil && !*e.Classifier.AddClassesToPath {
		return e.Classifier.LogDir
	}
	return e.Classifier.LogDir + "_" + e.ClassesString()
}

func (e Experiment) GCELogDir() string {
	return e.CVAE.LogDir + "_" + e.ClassesString()
}

// Checkpoint paths are relative to the scripts directory.
func (e Experiment) ClassifierCheckpoint() string {
	return filepath.Join(PretrainedDir, e.ClassifierLogDir(), "model.pt")
}

func (e Experiment) GCECheckpoint() string {
	return filepath.Join(PretrainedDir, e.GCELogDir(), "gce_model.pt")
}

func (e Experiment) FigureDir() string {
	return filepath.Join(FiguresDir, e.Figures.Implementation)
}

func ParseExperiments(bytes []byte) ([]Experiment, error) {
	var file ExperimentFile
	if err := yaml.UnmarshalStrict(bytes, &file); err != nil {
		return nil, fmt.Errorf("parse experiments: %v", err)
	}
	seen := make(map[string]bool)
	for i := range file.Experiments {
		e := &file.Experiments[i]
		e.SetDefaults()
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("duplicate experiment %s", e.Name)
		}
		seen[e.Name] = true
	}
	return file.Experiments, nil
}

func LoadExperiments(fname string) ([]Experiment, error) {
	bytes, err := ioutil.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("open experiments: %v", err)
	}
	return ParseExperiments(bytes)
}
