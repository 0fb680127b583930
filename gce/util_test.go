package gce

import (
	"bufio"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestExt(t *testing.T) {
	check := func(fname string, expected string) {
		if res := Ext(fname); res != expected {
			t.Errorf("Ext(%q) = %q; want %q", fname, res, expected)
		}
	}
	check("information_flow.png", "png")
	check("figures/mnist_38/sweep.svg", "svg")
	check("README", "")
}

func TestCommandLines(t *testing.T) {
	var lines []string
	cmd, err := Command("test", CommandOptions{
		OnLine: func(line string) {
			lines = append(lines, line)
		},
	}, "sh", "-c", "echo one; echo two")
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Wait(); err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"one", "two"}) {
		t.Errorf("got lines %v", lines)
	}
}

func TestCommandProgressBarLine(t *testing.T) {
	var lines []string
	cmd, err := Command("test", CommandOptions{
		OnLine: func(line string) {
			lines = append(lines, line)
		},
	}, "sh", "-c", `printf 'epoch 1\repoch 2\n'`)
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Wait(); err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0] != "epoch 2" {
		t.Errorf("got lines %q; want [\"epoch 2\"]", lines)
	}
}

func TestCommandError(t *testing.T) {
	cmd, err := Command("test", CommandOptions{}, "sh", "-c", "echo starting; echo 'no such checkpoint' >&2; exit 3")
	if err != nil {
		t.Fatal(err)
	}
	err = cmd.Wait()
	cmdErr, ok := err.(CmdError)
	if !ok {
		t.Fatalf("Wait() = %v; want CmdError", err)
	}
	if len(cmdErr.Lines) != 2 {
		t.Errorf("kept %d lines; want 2", len(cmdErr.Lines))
	}
	if !strings.Contains(cmdErr.Error(), "exit status 3") {
		t.Errorf("error %q does not mention exit status", cmdErr.Error())
	}
}

func TestCommandDir(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	cmd, err := Command("test", CommandOptions{
		Dir: dir,
		Env: []string{"GCE_TEST_VALUE=42"},
		OnLine: func(line string) {
			lines = append(lines, line)
		},
	}, "sh", "-c", "pwd; echo $GCE_TEST_VALUE")
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Wait(); err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || !strings.HasSuffix(lines[0], dir[strings.LastIndex(dir, "/"):]) || lines[1] != "42" {
		t.Errorf("got lines %q", lines)
	}
}

func collectLines(t *testing.T, script string) []string {
	t.Helper()
	var lines []string
	cmd, err := Command("test", CommandOptions{
		OnlyDebug: true,
		OnLine: func(line string) {
			lines = append(lines, line)
		},
	}, "sh", "-c", script)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait() = %v", err)
		}
	case <-time.After(20 * time.Second):
		cmd.Stop()
		t.Fatalf("Wait() did not return")
	}
	return lines
}

func TestCommandLongLine(t *testing.T) {
	lines := collectLines(t, `head -c 2000000 /dev/zero | tr '\0' x; echo; echo done`)
	if len(lines) != 2 {
		t.Fatalf("got %d lines; want 2", len(lines))
	}
	if len(lines[0]) != CmdMaxLineLength || strings.Trim(lines[0], "x") != "" {
		t.Errorf("long line cut to %d bytes", len(lines[0]))
	}
	if lines[1] != "done" {
		t.Errorf("line after long line = %q", lines[1])
	}
}

func TestCommandProgressWithoutNewline(t *testing.T) {
	lines := collectLines(t, `i=0; while [ $i -lt 20000 ]; do printf '\r%d' $i; i=$((i+1)); done; printf '\n'; echo ok`)
	if !reflect.DeepEqual(lines, []string{"19999", "ok"}) {
		t.Errorf("got lines %q", lines)
	}
}

func TestScanOutputLines(t *testing.T) {
	check := func(input string, expected []string) {
		scanner := bufio.NewScanner(strings.NewReader(input))
		scanner.Buffer(make([]byte, 16), 64)
		scanner.Split(scanOutputLines(8))
		var lines []string
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			lines = append(lines, line[strings.LastIndex(line, "\r")+1:])
		}
		if err := scanner.Err(); err != nil {
			t.Errorf("%q: %v", input, err)
		}
		if !reflect.DeepEqual(lines, expected) {
			t.Errorf("%q: got %q; want %q", input, lines, expected)
		}
	}
	check("a\nb\n", []string{"a", "b"})
	check("a\nlast", []string{"a", "last"})
	check("0123456789abcdef\nok\n", []string{"01234567", "ok"})
	check("crlf\r\nnext\r\n", []string{"crlf", "next"})
	check("\r1\r2\r3\r4\r5\r6\r7\r8\r9\n", []string{"9"})
	check("\r1\r2\r3\r4\r5\r6\r7\r8\r9\r10\r11", []string{"11"})
}
