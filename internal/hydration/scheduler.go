// Package hydration models the island loader the islands package generates.
//
// The browser runtime is source text; this package runs the same state
// machine against an abstract Platform so the scheduling rules can be
// exercised in Go, and so rendered pages can be audited with Inspect. Each
// island instance moves Discovered -> Scheduled -> Hydrating -> Hydrated, or
// ends in Failed (malformed props, mount error) or Skipped (the marker was
// gone when hydration fired).
package hydration

import (
	"encoding/json"
	"fmt"

	ssrerrors "github.com/conneroisu/ssrkit/internal/errors"
)

// Attribute names of the runtime DOM contract.
const (
	AttrIsland      = "data-island"
	AttrProps       = "data-props"
	AttrClient      = "data-client"
	AttrPlaceholder = "placeholder"
)

// Strategy names.
const (
	StrategyLoad    = "load"
	StrategyIdle    = "idle"
	StrategyVisible = "visible"
)

// State is the lifecycle state of one island instance.
type State int

const (
	Discovered State = iota
	Scheduled
	Hydrating
	Hydrated
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Discovered:
		return "discovered"
	case Scheduled:
		return "scheduled"
	case Hydrating:
		return "hydrating"
	case Hydrated:
		return "hydrated"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == Hydrated || s == Failed || s == Skipped
}

// Element is the part of a DOM element the runtime touches.
type Element interface {
	Attr(name string) (string, bool)
	RemoveAttr(name string)
}

// Observer is a visibility observation that can be torn down.
type Observer interface {
	Disconnect()
}

// Platform supplies the scheduling capabilities of the host page.
type Platform interface {
	// RequestIdle queues fn for idle time. It returns false when the
	// platform has no idle callback.
	RequestIdle(fn func()) bool
	// SetTimeout queues fn on a zero-delay timer.
	SetTimeout(fn func())
	// Observe calls cb whenever el's intersection with the viewport
	// changes. It returns false when visibility observation is missing.
	Observe(el Element, cb func(visible bool)) (Observer, bool)
}

// MountFunc hydrates the component into el.
type MountFunc func(el Element, props map[string]any) error

// Instance is one island placement.
type Instance struct {
	Name     string
	Element  Element
	Strategy string
	Props    map[string]any
	State    State
	Err      error
	// History lists every state entered, in order.
	History []State
}

func (i *Instance) enter(s State) {
	i.State = s
	i.History = append(i.History, s)
}

// Scheduler schedules island hydration on a Platform.
type Scheduler struct {
	platform Platform
	mount    MountFunc
}

// NewScheduler returns a scheduler mounting islands with mount.
func NewScheduler(platform Platform, mount MountFunc) *Scheduler {
	return &Scheduler{platform: platform, mount: mount}
}

// Discover returns an instance for every element marked as island name.
func (s *Scheduler) Discover(elements []Element, name string) []*Instance {
	var found []*Instance
	for _, el := range elements {
		if v, ok := el.Attr(AttrIsland); !ok || v != name {
			continue
		}
		inst := &Instance{Name: name, Element: el}
		inst.enter(Discovered)
		found = append(found, inst)
	}
	return found
}

// Run discovers and schedules every placement of island name.
func (s *Scheduler) Run(elements []Element, name string) []*Instance {
	found := s.Discover(elements, name)
	for _, inst := range found {
		s.Schedule(inst)
	}
	return found
}

// Schedule reads the placement's props and strategy and arranges for it to
// hydrate. Malformed props fail this instance only.
func (s *Scheduler) Schedule(inst *Instance) {
	props, err := ParseProps(inst.Element)
	if err != nil {
		inst.Err = ssrerrors.ErrMalformedPropsFor(inst.Name, err)
		inst.enter(Failed)
		return
	}
	inst.Props = props
	inst.Strategy, _ = StrategyOf(inst.Element, props)
	inst.enter(Scheduled)

	fire := func() { s.hydrate(inst) }

	switch inst.Strategy {
	case StrategyIdle:
		if !s.platform.RequestIdle(fire) {
			s.platform.SetTimeout(fire)
		}
	case StrategyVisible:
		var obs Observer
		done, detached := false, false
		obs, ok := s.platform.Observe(inst.Element, func(visible bool) {
			if !visible || done {
				return
			}
			done = true
			if obs != nil {
				obs.Disconnect()
				detached = true
			}
			fire()
		})
		switch {
		case !ok:
			fire()
		case done && !detached && obs != nil:
			// The platform reported an intersection before Observe returned.
			obs.Disconnect()
		}
	default:
		fire()
	}
}

// hydrate runs the guard and mounts the component.
func (s *Scheduler) hydrate(inst *Instance) {
	if inst.State != Scheduled {
		return
	}
	if _, ok := inst.Element.Attr(AttrIsland); !ok {
		inst.enter(Skipped)
		return
	}
	inst.Element.RemoveAttr(AttrIsland)
	inst.enter(Hydrating)

	if err := s.mount(inst.Element, inst.Props); err != nil {
		inst.Err = err
		inst.enter(Failed)
		return
	}
	inst.enter(Hydrated)
}

// ParseProps decodes the data-props attribute. A missing attribute is an
// empty object.
func ParseProps(el Element) (map[string]any, error) {
	raw, ok := el.Attr(AttrProps)
	if !ok || raw == "" {
		return map[string]any{}, nil
	}
	var props map[string]any
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, err
	}
	if props == nil {
		props = map[string]any{}
	}
	return props, nil
}

// StrategyOf returns the requested strategy and where it came from:
// the data-client attribute, the client prop, or the default.
func StrategyOf(el Element, props map[string]any) (strategy, source string) {
	if v, ok := el.Attr(AttrClient); ok && v != "" {
		return v, AttrClient
	}
	if v, ok := props["client"].(string); ok && v != "" {
		return v, "props.client"
	}
	return StrategyLoad, "default"
}

// KnownStrategy reports whether s is one the runtime schedules specially.
func KnownStrategy(s string) bool {
	return s == StrategyLoad || s == StrategyIdle || s == StrategyVisible
}
