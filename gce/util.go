package gce

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rubenfonseca/fastimage"
)

func JsonMarshal(x interface{}) []byte {
	bytes, err := json.Marshal(x)
	if err != nil {
		panic(err)
	}
	return bytes
}

func JsonUnmarshal(bytes []byte, x interface{}) {
	err := json.Unmarshal(bytes, x)
	if err != nil {
		panic(err)
	}
}

func JsonResponse(w http.ResponseWriter, x interface{}) {
	bytes := JsonMarshal(x)
	w.Header().Set("Content-Type", "application/json")
	w.Write(bytes)
}

func ParseJsonRequest(w http.ResponseWriter, r *http.Request, x interface{}) error {
	bytes, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("json decode error: %v", err), 400)
		return err
	}
	if err := json.Unmarshal(bytes, x); err != nil {
		http.Error(w, fmt.Sprintf("json decode error: %v", err), 400)
		return err
	}
	return nil
}

func ParseJsonResponse(resp *http.Response, response interface{}) error {
	defer resp.Body.Close()
	bytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error performing HTTP request: %v", err)
	} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, strings.TrimSpace(string(bytes)))
	}
	if response != nil {
		if err := json.Unmarshal(bytes, response); err != nil {
			return fmt.Errorf("json decode error: %v", err)
		}
	}
	return nil
}

func JsonGet(baseURL string, path string, response interface{}) error {
	resp, err := http.Get(baseURL + path)
	if err != nil {
		return fmt.Errorf("error performing HTTP request: %v", err)
	}
	err = ParseJsonResponse(resp, response)
	if err != nil {
		return fmt.Errorf("[GET %s] %v", baseURL+path, err)
	}
	return nil
}

func JsonPost(baseURL string, path string, request interface{}, response interface{}) error {
	var body io.Reader
	if request != nil {
		body = bytes.NewBuffer(JsonMarshal(request))
	}
	resp, err := http.Post(baseURL+path, "application/json", body)
	if err != nil {
		return fmt.Errorf("error performing HTTP request (%s): %v", baseURL+path, err)
	}
	err = ParseJsonResponse(resp, response)
	if err != nil {
		return fmt.Errorf("[POST %s] %v", baseURL+path, err)
	}
	return nil
}

const Debug bool = false

// How many trailing output lines a CmdError keeps.
const CmdErrorLines int = 5

// Output lines longer than this are cut, and the rest of the line is dropped.
const CmdMaxLineLength int = 16*1024

// Split function for process output. Lines end at '\n'. Text that is
// overwritten with '\r' before the line ends is dropped, so progress bars
// that never print a newline stay bounded.
func scanOutputLines(maxLength int) bufio.SplitFunc {
	var skipping bool
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			if skipping {
				skipping = false
				return i + 1, nil, nil
			}
			return i + 1, data[0:i], nil
		}
		if skipping {
			return len(data), nil, nil
		}
		// a trailing '\r' may still be followed by '\n'
		if len(data) > 1 {
			if i := bytes.LastIndexByte(data[0:len(data)-1], '\r'); i > 0 {
				return i, nil, nil
			}
		}
		if len(data) >= maxLength {
			skipping = true
			return len(data), data[0:maxLength], nil
		}
		if atEOF && len(data) > 0 {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}

type Cmd struct {
	prefix string
	cmd *exec.Cmd
	// closed once both output pipes hit EOF
	outputDone chan struct{}

	mu sync.Mutex
	lastLines []string
	closed bool
}

type CmdError struct {
	ExitError error
	Lines []string
}

func (e CmdError) Error() string {
	var linesPart string
	if len(e.Lines) > 0 {
		linesPart = fmt.Sprintf(" (%s)", e.Lines[len(e.Lines)-1])
	}
	return fmt.Sprintf("exit error: %v", e.ExitError) + linesPart
}

type CommandOptions struct {
	// Working directory of the process, if set.
	Dir string
	// Extra environment variables in KEY=VALUE form, appended to os.Environ().
	Env []string
	// Called with every line the process writes to stdout or stderr.
	// Calls are serialized.
	OnLine func(line string)
	// Whether to only print output lines if debug mode is on.
	OnlyDebug bool
}

// Start a command, forwarding its stdout and stderr line by line to the log
// and to opts.OnLine.
func Command(prefix string, opts CommandOptions, command string, args ...string) (*Cmd, error) {
	log.Printf("[util] %s %v", command, args)
	cmd := exec.Command(command, args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting %s: %v", command, err)
	}
	mycmd := &Cmd{
		prefix: prefix,
		cmd: cmd,
		outputDone: make(chan struct{}),
	}

	var lineMu sync.Mutex
	var wg sync.WaitGroup
	readLines := func(rd io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(rd)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		scanner.Split(scanOutputLines(CmdMaxLineLength))
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			// progress bars rewrite a line with carriage returns; keep the latest state
			if idx := strings.LastIndex(line, "\r"); idx >= 0 {
				line = line[idx+1:]
			}
			if !opts.OnlyDebug || Debug {
				log.Printf("[%s] %s", prefix, line)
			}
			mycmd.mu.Lock()
			mycmd.lastLines = append(mycmd.lastLines, line)
			if len(mycmd.lastLines) > CmdErrorLines {
				mycmd.lastLines = mycmd.lastLines[len(mycmd.lastLines)-CmdErrorLines:]
			}
			mycmd.mu.Unlock()
			if opts.OnLine != nil {
				lineMu.Lock()
				opts.OnLine(line)
				lineMu.Unlock()
			}
		}
		if err := scanner.Err(); err != nil {
			log.Printf("[%s] error reading output: %v", prefix, err)
		}
		// the process blocks on a full pipe if we stop reading
		io.Copy(ioutil.Discard, rd)
	}
	wg.Add(2)
	go readLines(stdout)
	go readLines(stderr)
	go func() {
		wg.Wait()
		close(mycmd.outputDone)
	}()
	return mycmd, nil
}

// Wait for the process to exit and all of its output to be consumed.
func (cmd *Cmd) Wait() error {
	cmd.mu.Lock()
	if cmd.closed {
		cmd.mu.Unlock()
		panic(fmt.Errorf("closed twice"))
	}
	cmd.closed = true
	cmd.mu.Unlock()

	<-cmd.outputDone
	err := cmd.cmd.Wait()
	if err != nil {
		cmd.mu.Lock()
		lines := append([]string{}, cmd.lastLines...)
		cmd.mu.Unlock()
		myerr := CmdError{
			ExitError: err,
			Lines: lines,
		}
		log.Printf("[%s] %v", cmd.prefix, myerr.Error())
		return myerr
	}
	return nil
}

// Kill the process. Wait must still be called.
func (cmd *Cmd) Stop() error {
	if cmd.cmd.Process == nil {
		return nil
	}
	return cmd.cmd.Process.Kill()
}

func GetImageDimsFromFile(fname string) ([2]int, error) {
	var dims [2]int
	file, err := os.Open(fname)
	if err != nil {
		return dims, err
	}
	defer file.Close()
	_, size, err := fastimage.DetectImageTypeFromReader(file)
	if err != nil {
		return dims, err
	} else if size == nil {
		return dims, fmt.Errorf("unknown image format")
	}
	dims = [2]int{int(size.Width), int(size.Height)}
	return dims, nil
}

// Like filepath.Ext but doesn't include the ".".
func Ext(fname string) string {
	ext := filepath.Ext(fname)
	if len(ext) == 0 || ext[0] != '.' {
		return ext
	} else {
		return ext[1:]
	}
}

func FileExists(fname string) bool {
	_, err := os.Stat(fname)
	return err == nil
}
