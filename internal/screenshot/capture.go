package screenshot

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Capturer produces a full-screen PNG. The GUI side only ever sees the
// encoded bytes or a failure.
type Capturer interface {
	Capture() ([]byte, error)
}

type Exec interface {
	Run(name string, args ...string) error
}

type RealExec struct{}

func (r *RealExec) Run(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

var ErrNoCaptureTool = errors.New("no screenshot tool available")

// tool describes one platform screenshot command; args receive the output
// file path appended or substituted via argsFor.
type tool struct {
	name string
	args func(outPath string) []string
}

var tools = []tool{
	{name: "screencapture", args: func(p string) []string { return []string{"-x", p} }},
	{name: "gnome-screenshot", args: func(p string) []string { return []string{"-f", p} }},
	{name: "scrot", args: func(p string) []string { return []string{"-o", p} }},
	{name: "import", args: func(p string) []string { return []string{"-window", "root", p} }},
}

type ExecCapturer struct {
	exec     Exec
	lookPath func(string) (string, error)
}

func NewExecCapturer(e Exec) *ExecCapturer {
	if e == nil {
		e = &RealExec{}
	}
	return &ExecCapturer{exec: e, lookPath: exec.LookPath}
}

func (c *ExecCapturer) Capture() ([]byte, error) {
	selected, ok := c.pickTool()
	if !ok {
		return nil, ErrNoCaptureTool
	}

	tmp, err := os.CreateTemp("", "snapai-shot-*.png")
	if err != nil {
		return nil, err
	}
	path := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(path) }()

	if err := c.exec.Run(selected.name, selected.args(path)...); err != nil {
		return nil, fmt.Errorf("%s failed: %w", selected.name, err)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s produced an empty capture", selected.name)
	}
	return data, nil
}

func (c *ExecCapturer) pickTool() (tool, bool) {
	for _, t := range tools {
		if _, err := c.lookPath(t.name); err == nil {
			return t, true
		}
	}
	return tool{}, false
}
