package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// AdapterKind names the debug adapter behind a session.
type AdapterKind string

const (
	AdapterJavaScript AdapterKind = "javascript"
	AdapterPython     AdapterKind = "python"
	AdapterLLDB       AdapterKind = "lldb"
	AdapterGDB        AdapterKind = "gdb"
	AdapterGo         AdapterKind = "go"
	AdapterPHP        AdapterKind = "php"
	AdapterCustom     AdapterKind = "custom"
)

// RequestKind is the DAP request used to start the session.
type RequestKind string

const (
	RequestLaunch RequestKind = "launch"
	RequestAttach RequestKind = "attach"
)

// ErrInvalidScenario is wrapped by every Validate failure.
var ErrInvalidScenario = errors.New("invalid scenario")

var adapterKinds = map[AdapterKind]bool{
	AdapterJavaScript: true,
	AdapterPython:     true,
	AdapterLLDB:       true,
	AdapterGDB:        true,
	AdapterGo:         true,
	AdapterPHP:        true,
	AdapterCustom:     true,
}

// Scenario is one named debug configuration, already variable-substituted by
// the configuration layer. It is carried as data only.
type Scenario struct {
	Label          string          `json:"label"`
	Adapter        AdapterKind     `json:"adapter"`
	Request        RequestKind     `json:"request"`
	Cwd            string          `json:"cwd,omitempty"`
	Program        string          `json:"program,omitempty"`
	InitializeArgs json.RawMessage `json:"initialize_args,omitempty"`
}

// Validate checks the scenario's enumerations and that any initialize args
// are a JSON object agreeing with the request kind.
func (s *Scenario) Validate() error {
	if strings.TrimSpace(s.Label) == "" {
		return fmt.Errorf("%w: label is required", ErrInvalidScenario)
	}
	if !adapterKinds[s.Adapter] {
		return fmt.Errorf("%w %q: unknown adapter %q", ErrInvalidScenario, s.Label, s.Adapter)
	}
	switch s.Request {
	case RequestLaunch, RequestAttach:
	default:
		return fmt.Errorf("%w %q: request must be launch or attach, got %q", ErrInvalidScenario, s.Label, s.Request)
	}
	if len(s.InitializeArgs) == 0 {
		return nil
	}
	if !gjson.ValidBytes(s.InitializeArgs) || !gjson.ParseBytes(s.InitializeArgs).IsObject() {
		return fmt.Errorf("%w %q: initialize_args must be a JSON object", ErrInvalidScenario, s.Label)
	}
	if req := s.InitializeArg("request"); req.Exists() && req.String() != string(s.Request) {
		return fmt.Errorf("%w %q: initialize_args.request %q disagrees with request %q", ErrInvalidScenario, s.Label, req.String(), s.Request)
	}
	return nil
}

// InitializeArg looks up an adapter specific argument by gjson path.
func (s *Scenario) InitializeArg(path string) gjson.Result {
	return gjson.GetBytes(s.InitializeArgs, path)
}

type scenarioFile struct {
	Label          string         `yaml:"label"`
	Adapter        string         `yaml:"adapter"`
	Request        string         `yaml:"request"`
	Cwd            string         `yaml:"cwd"`
	Program        string         `yaml:"program"`
	InitializeArgs map[string]any `yaml:"initialize_args"`
}

// ParseScenario decodes a YAML (or JSON) scenario document and validates it.
func ParseScenario(data []byte) (*Scenario, error) {
	var f scenarioFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	s := &Scenario{
		Label:   f.Label,
		Adapter: AdapterKind(strings.ToLower(f.Adapter)),
		Request: RequestKind(strings.ToLower(f.Request)),
		Cwd:     f.Cwd,
		Program: f.Program,
	}
	if s.Request == "" {
		s.Request = RequestLaunch
	}
	if len(f.InitializeArgs) > 0 {
		raw, err := json.Marshal(f.InitializeArgs)
		if err != nil {
			return nil, fmt.Errorf("encode initialize_args: %w", err)
		}
		s.InitializeArgs = raw
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadScenarioFile reads and parses a scenario file.
func LoadScenarioFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}
