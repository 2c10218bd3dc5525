package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"toaster/internal/model"
)

// Invocation records one tool run.
type Invocation struct {
	Name string
	Args []string
}

// ToolFunc handles one scripted tool invocation.
type ToolFunc func(args []string) (stdout, stderr string, err error)

// ScriptRunner satisfies tools.Runner with per-tool handler functions
// so tests can script external tools without spawning processes. Every
// invocation is recorded.
type ScriptRunner struct {
	mu       sync.Mutex
	handlers map[string]ToolFunc
	calls    []Invocation
}

// NewScriptRunner creates an empty ScriptRunner. Running a tool with no
// handler is an error.
func NewScriptRunner() *ScriptRunner {
	return &ScriptRunner{handlers: make(map[string]ToolFunc)}
}

// Handle installs the handler for the named tool, replacing any
// previous one.
func (r *ScriptRunner) Handle(name string, fn ToolFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

// HandleOK installs a handler that succeeds with empty output. For
// tools whose side effects the test does not observe.
func (r *ScriptRunner) HandleOK(name string) {
	r.Handle(name, func([]string) (string, string, error) { return "", "", nil })
}

func (r *ScriptRunner) Run(_ context.Context, name string, args ...string) (string, string, error) {
	r.mu.Lock()
	fn, ok := r.handlers[name]
	r.calls = append(r.calls, Invocation{Name: name, Args: args})
	r.mu.Unlock()

	if !ok {
		return "", "", fmt.Errorf("no handler scripted for tool %q", name)
	}
	return fn(args)
}

func (r *ScriptRunner) LookPath(name string) (string, error) {
	return "/usr/bin/" + name, nil
}

// Calls returns a copy of the recorded invocations.
func (r *ScriptRunner) Calls() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Invocation, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsTo returns the recorded invocations of one tool.
func (r *ScriptRunner) CallsTo(name string) []Invocation {
	var out []Invocation
	for _, c := range r.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// HeaderTool builds a handler for the header reader. valuesByFile maps
// a file path (or its base name) to its header key/value pairs; keys
// the map does not carry are reported undefined ("*").
func HeaderTool(valuesByFile map[string]map[string]string) ToolFunc {
	return func(args []string) (string, string, error) {
		// Invoked as: -n -c <k1,k2,...> <file>
		if len(args) < 4 || args[0] != "-n" || args[1] != "-c" {
			return "", "", fmt.Errorf("unexpected header reader args: %v", args)
		}
		keys := strings.Split(args[2], ",")
		file := args[3]

		values, ok := valuesByFile[file]
		if !ok {
			for known, v := range valuesByFile {
				if strings.HasSuffix(file, "/"+known) || known == file {
					values = v
					ok = true
					break
				}
			}
		}
		if !ok {
			return "", "", fmt.Errorf("no header values scripted for %q", file)
		}

		fields := []string{file}
		for _, k := range keys {
			v, has := values[k]
			if !has {
				v = "*"
			}
			fields = append(fields, v)
		}
		return strings.Join(fields, " ") + "\n", "", nil
	}
}

// StubVersions satisfies tools.VersionProvider from a fixed sequence.
// Each Snapshot consumes the next entry; when the sequence is exhausted
// the last entry repeats. An empty sequence yields a fixed triple.
type StubVersions struct {
	mu       sync.Mutex
	Sequence []model.Version
	calls    int
}

// FixedVersions returns a provider that always reports the same triple.
func FixedVersions() *StubVersions {
	return &StubVersions{Sequence: []model.Version{{
		PipelineHash:   "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		ToolHash:       "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Tempo2Revision: "2024.02.1",
	}}}
}

func (s *StubVersions) Snapshot(context.Context) (model.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Sequence) == 0 {
		return model.Version{PipelineHash: "p", ToolHash: "t", Tempo2Revision: "r"}, nil
	}
	i := s.calls
	if i >= len(s.Sequence) {
		i = len(s.Sequence) - 1
	}
	s.calls++
	return s.Sequence[i], nil
}
