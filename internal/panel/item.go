// Package panel encodes the debug panel state that clients exchange through
// the relay. The relay itself never decodes it; only edges do.
package panel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// Version is the payload version written by Encode.
const Version = 1

// ErrUnsupportedVersion is returned for payloads from a newer encoder.
var ErrUnsupportedVersion = errors.New("unsupported panel payload version")

// View is the panel tab a client has open.
type View string

const (
	ViewVariables     View = "variables"
	ViewStackFrames   View = "stack_frames"
	ViewModules       View = "modules"
	ViewLoadedSources View = "loaded_sources"
	ViewConsole       View = "console"
)

// Views lists every known view.
var Views = []View{ViewVariables, ViewStackFrames, ViewModules, ViewLoadedSources, ViewConsole}

// BreakpointKind distinguishes plain breakpoints from logpoints.
type BreakpointKind int

const (
	KindStandard BreakpointKind = iota
	KindLog
)

func (k BreakpointKind) String() string {
	if k == KindLog {
		return "log"
	}
	return "standard"
}

// MarshalJSON writes the kind by name.
func (k BreakpointKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts "standard" or "log".
func (k *BreakpointKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "standard":
		*k = KindStandard
	case "log":
		*k = KindLog
	default:
		return fmt.Errorf("unknown breakpoint kind %q", s)
	}
	return nil
}

// Breakpoint is one breakpoint a client has placed.
type Breakpoint struct {
	Path       string         `json:"path"`
	Position   uint64         `json:"position"`
	Kind       BreakpointKind `json:"kind"`
	LogMessage string         `json:"log_message,omitempty"`
}

func (b Breakpoint) validate() error {
	if b.Path == "" {
		return errors.New("breakpoint path is empty")
	}
	switch b.Kind {
	case KindStandard:
		if b.LogMessage != "" {
			return fmt.Errorf("standard breakpoint %s:%d carries a log message", b.Path, b.Position)
		}
	case KindLog:
		if b.LogMessage == "" {
			return fmt.Errorf("logpoint %s:%d has no message", b.Path, b.Position)
		}
	default:
		return fmt.Errorf("breakpoint %s:%d: invalid kind %d", b.Path, b.Position, int(b.Kind))
	}
	return nil
}

// Item is one client's panel state.
type Item struct {
	V              int          `json:"v"`
	View           View         `json:"view,omitempty"`
	SelectedThread *int64       `json:"selected_thread,omitempty"`
	SelectedFrame  *int64       `json:"selected_frame,omitempty"`
	Breakpoints    []Breakpoint `json:"breakpoints,omitempty"`
	Watches        []string     `json:"watches,omitempty"`
}

func (it *Item) find(path string, pos uint64) int {
	return slices.IndexFunc(it.Breakpoints, func(b Breakpoint) bool {
		return b.Path == path && b.Position == pos
	})
}

// Toggle adds a standard breakpoint at path:pos, or removes whatever is there.
func (it *Item) Toggle(path string, pos uint64) {
	if i := it.find(path, pos); i >= 0 {
		it.Breakpoints = slices.Delete(it.Breakpoints, i, i+1)
		return
	}
	it.Breakpoints = append(it.Breakpoints, Breakpoint{Path: path, Position: pos})
}

// SetLogMessage turns the breakpoint at path:pos into a logpoint. An empty
// message turns a logpoint back into a standard breakpoint. A missing
// breakpoint is created.
func (it *Item) SetLogMessage(path string, pos uint64, msg string) {
	i := it.find(path, pos)
	if i < 0 {
		it.Breakpoints = append(it.Breakpoints, Breakpoint{Path: path, Position: pos})
		i = len(it.Breakpoints) - 1
	}
	if msg == "" {
		it.Breakpoints[i].Kind = KindStandard
		it.Breakpoints[i].LogMessage = ""
		return
	}
	it.Breakpoints[i].Kind = KindLog
	it.Breakpoints[i].LogMessage = msg
}

// BreakpointsIn returns the breakpoints of one file ordered by position.
func (it *Item) BreakpointsIn(path string) []Breakpoint {
	out := lo.Filter(it.Breakpoints, func(b Breakpoint, _ int) bool { return b.Path == path })
	slices.SortFunc(out, compareBreakpoints)
	return out
}

func compareBreakpoints(a, b Breakpoint) int {
	if c := strings.Compare(a.Path, b.Path); c != 0 {
		return c
	}
	switch {
	case a.Position < b.Position:
		return -1
	case a.Position > b.Position:
		return 1
	}
	return 0
}

// Encode validates it and writes the current payload version. Breakpoints are
// written ordered by path and position, and watches deduplicated.
func Encode(it Item) ([]byte, error) {
	for _, b := range it.Breakpoints {
		if err := b.validate(); err != nil {
			return nil, err
		}
	}
	out := it
	out.V = Version
	out.Breakpoints = slices.Clone(it.Breakpoints)
	slices.SortFunc(out.Breakpoints, compareBreakpoints)
	if dup := lo.FindDuplicatesBy(out.Breakpoints, func(b Breakpoint) string {
		return fmt.Sprintf("%s:%d", b.Path, b.Position)
	}); len(dup) > 0 {
		return nil, fmt.Errorf("duplicate breakpoint at %s:%d", dup[0].Path, dup[0].Position)
	}
	out.Watches = lo.Uniq(it.Watches)
	return json.Marshal(out)
}

// Decode parses a payload. An empty payload is the zero Item, which is what a
// client that never published state holds.
func Decode(data []byte) (Item, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Item{V: Version}, nil
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return Item{}, errors.New("panel payload is not a JSON object")
	}
	v := gjson.GetBytes(data, "v")
	if !v.Exists() {
		return Item{}, errors.New("panel payload has no version")
	}
	if v.Int() < 1 || v.Int() > Version {
		return Item{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v.Int())
	}
	var it Item
	if err := json.Unmarshal(data, &it); err != nil {
		return Item{}, fmt.Errorf("decode panel payload: %w", err)
	}
	for _, b := range it.Breakpoints {
		if err := b.validate(); err != nil {
			return Item{}, err
		}
	}
	return it, nil
}
