package dialog

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Console implements Dialogs with line prompts on a reader and writer
type Console struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsole creates console dialogs, typically over os.Stdin and os.Stdout
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// readLine prints prompt and returns the trimmed answer; ok is false at end of input
func (d *Console) readLine(prompt string) (string, bool) {
	fmt.Fprint(d.out, prompt)
	line, err := d.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(d.out)
		return "", false
	}
	return strings.TrimSpace(line), true
}

func isCancel(answer string) bool {
	switch strings.ToLower(answer) {
	case "c", "cancel", "q", "quit":
		return true
	}
	return false
}

// SelectInputFile implements Dialogs
func (d *Console) SelectInputFile(title string) (string, bool) {
	for {
		path, ok := d.readLine(fmt.Sprintf("%s (empty to cancel): ", title))
		if !ok || path == "" || isCancel(path) {
			return "", false
		}
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, true
		}
		fmt.Fprintf(d.out, "File not found: %s\n", path)
	}
}

// ShowInfo implements Dialogs
func (d *Console) ShowInfo(title, message string) {
	fmt.Fprintf(d.out, "== %s ==\n%s\n", title, message)
}

// AskYesNo implements Dialogs
func (d *Console) AskYesNo(title, question string) bool {
	for {
		answer, ok := d.readLine(fmt.Sprintf("%s: %s [y/n]: ", title, question))
		if !ok {
			return false
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
	}
}

// SelectOutputFile implements Dialogs
func (d *Console) SelectOutputFile(title, defaultExt string) (string, bool) {
	path, ok := d.readLine(fmt.Sprintf("%s [*%s] (empty to cancel): ", title, defaultExt))
	if !ok || path == "" || isCancel(path) {
		return "", false
	}
	return withDefaultExt(path, defaultExt), true
}

// AskFloat implements Dialogs. An empty answer accepts initial.
func (d *Console) AskFloat(title, prompt string, initial float64) (float64, bool) {
	for {
		answer, ok := d.readLine(fmt.Sprintf("%s: %s [%g] ('c' to cancel): ", title, prompt, initial))
		if !ok || isCancel(answer) {
			return 0, false
		}
		if answer == "" {
			return initial, true
		}
		v, err := strconv.ParseFloat(answer, 64)
		if err == nil && v > 0 && !math.IsInf(v, 0) {
			return v, true
		}
		fmt.Fprintf(d.out, "Please enter a positive number\n")
	}
}

// ShowError implements Dialogs
func (d *Console) ShowError(title, message string) {
	fmt.Fprintf(d.out, "!! %s !!\n%s\n", title, message)
}
