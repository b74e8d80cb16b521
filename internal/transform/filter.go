package transform

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/orgloop/engine/internal/dynval"
	"github.com/orgloop/engine/internal/model"
	"github.com/orgloop/engine/internal/orgerr"
	"github.com/orgloop/engine/internal/route"
)

var errMissingFilter = errors.New(`transform.filter config requires a "filter" key`)

// Filter applies the same predicate grammar as the Route Matcher to an
// already-matched event (spec.md §4.6).
type Filter struct {
	node model.FilterNode
}

func NewFilter() *Filter { return &Filter{} }

func (f *Filter) Init(_ context.Context, cfg dynval.Value) error {
	node, ok := cfg.Raw()["filter"]
	if !ok {
		return orgerr.New(orgerr.ConfigInvalid, "transform.filter", "", errMissingFilter)
	}
	b, err := json.Marshal(node)
	if err != nil {
		return orgerr.Wrap(orgerr.ConfigInvalid, "transform.filter", "", err)
	}
	if err := json.Unmarshal(b, &f.node); err != nil {
		return orgerr.Wrap(orgerr.ConfigInvalid, "transform.filter", "", err)
	}
	return nil
}

func (f *Filter) Execute(_ context.Context, event model.Event) (model.Event, bool, error) {
	ok, err := route.Evaluate(f.node, event)
	if err != nil {
		return model.Event{}, false, orgerr.Wrap(orgerr.TransformError, "transform.filter", event.ID, err)
	}
	if !ok {
		return model.Event{}, false, nil
	}
	return event, true, nil
}

func (f *Filter) Shutdown(context.Context) error { return nil }
