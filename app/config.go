package app

// Global config object, set by cmd/main.go
var Config struct {
	// Directory containing the training scripts; they are run from here, and
	// the checkpoint and figure paths they print are relative to it.
	ScriptsDir string
	// Python interpreter used to run the scripts.
	Python string
	// Extra environment variables for the scripts, in KEY=VALUE form.
	Env []string
}

func init() {
	Config.ScriptsDir = "."
	Config.Python = "python3"
}
