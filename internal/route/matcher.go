package route

import (
	"fmt"
	"slices"

	"github.com/orgloop/engine/internal/model"
	"github.com/orgloop/engine/internal/orgerr"
)

// Matcher indexes routes by source ID so the dispatch path never scans the
// full route set per event.
type Matcher struct {
	bySource map[string][]model.RouteSpec
}

// Load validates routes against the declared sources and actors and builds
// a Matcher. It enforces spec.md §3 invariant 3: every route's source must
// be declared, its event_types must be non-empty, and its actor must be
// declared.
func Load(routes []model.RouteSpec, sources []model.SourceSpec, actors []model.ActorSpec) (*Matcher, error) {
	knownSources := make(map[string]bool, len(sources))
	for _, s := range sources {
		knownSources[s.ID] = true
	}
	knownActors := make(map[string]bool, len(actors))
	for _, a := range actors {
		knownActors[a.ID] = true
	}

	seenNames := make(map[string]bool, len(routes))
	m := &Matcher{bySource: map[string][]model.RouteSpec{}}

	for _, r := range routes {
		if r.Name == "" {
			return nil, orgerr.New(orgerr.ConfigInvalid, "route", "", fmt.Errorf("route name must not be empty"))
		}
		if seenNames[r.Name] {
			return nil, orgerr.New(orgerr.ConfigInvalid, "route", r.Name, fmt.Errorf("duplicate route name"))
		}
		seenNames[r.Name] = true

		if !knownSources[r.When.Source] {
			return nil, orgerr.New(orgerr.ConfigInvalid, "route", r.Name,
				fmt.Errorf("references undeclared source %q", r.When.Source))
		}
		if len(r.When.EventTypes) == 0 {
			return nil, orgerr.New(orgerr.ConfigInvalid, "route", r.Name,
				fmt.Errorf("when.event_types must be non-empty"))
		}
		for _, et := range r.When.EventTypes {
			if !model.EventType(et).Valid() {
				return nil, orgerr.New(orgerr.ConfigInvalid, "route", r.Name,
					fmt.Errorf("unknown event type %q", et))
			}
		}
		if !knownActors[r.Then.Actor] {
			return nil, orgerr.New(orgerr.ConfigInvalid, "route", r.Name,
				fmt.Errorf("references undeclared actor %q", r.Then.Actor))
		}

		m.bySource[r.When.Source] = append(m.bySource[r.When.Source], r)
	}

	return m, nil
}

// MatchingRoutes returns the routes whose when-clause the event satisfies,
// in declaration order (spec.md §4.5: a single event may fan out to
// multiple routes).
func (m *Matcher) MatchingRoutes(event model.Event) ([]model.RouteSpec, error) {
	candidates := m.bySource[event.Source]
	if len(candidates) == 0 {
		return nil, nil
	}

	var matched []model.RouteSpec
	for _, r := range candidates {
		if !slices.Contains(r.When.EventTypes, string(event.Type)) {
			continue
		}
		ok, err := Evaluate(r.When.Filter, event)
		if err != nil {
			return nil, orgerr.Wrap(orgerr.ConfigInvalid, "route", r.Name, err)
		}
		if ok {
			matched = append(matched, r)
		}
	}
	return matched, nil
}
