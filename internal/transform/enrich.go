package transform

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/orgloop/engine/internal/dynval"
	"github.com/orgloop/engine/internal/model"
	"github.com/orgloop/engine/internal/orgerr"
	"github.com/orgloop/engine/internal/route"
)

var templateRefPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// enrichField is one configured field addition: either a literal Value, a
// dot-path CopyFrom, or a Template containing {{dot.path}} references.
type enrichField struct {
	Target   string // dot-path under payload to set
	Value    any
	CopyFrom string
	Template string
}

// Enrich adds, copies, or computes fields into an event's payload (spec.md
// §4.6). Fields are applied in configuration order so a later field's
// template can reference an earlier field's output.
type Enrich struct {
	fields []enrichField
}

func NewEnrich() *Enrich { return &Enrich{} }

func (e *Enrich) Init(_ context.Context, cfg dynval.Value) error {
	raw, ok := cfg.Raw()["fields"].([]any)
	if !ok {
		return orgerr.New(orgerr.ConfigInvalid, "transform.enrich", "", fmt.Errorf(`config requires a "fields" list`))
	}
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return orgerr.New(orgerr.ConfigInvalid, "transform.enrich", "", fmt.Errorf("each field entry must be a mapping"))
		}
		target, _ := m["target"].(string)
		if target == "" {
			return orgerr.New(orgerr.ConfigInvalid, "transform.enrich", "", fmt.Errorf("field entry missing \"target\""))
		}
		f := enrichField{Target: target}
		if v, ok := m["value"]; ok {
			f.Value = v
		} else if cp, ok := m["copy_from"].(string); ok {
			f.CopyFrom = cp
		} else if tmpl, ok := m["template"].(string); ok {
			f.Template = tmpl
		} else {
			return orgerr.New(orgerr.ConfigInvalid, "transform.enrich", "",
				fmt.Errorf("field %q must set one of value, copy_from, template", target))
		}
		e.fields = append(e.fields, f)
	}
	return nil
}

func (e *Enrich) Execute(_ context.Context, event model.Event) (model.Event, bool, error) {
	out := event.Clone()
	for _, f := range e.fields {
		var val any
		switch {
		case f.Value != nil:
			val = f.Value
		case f.CopyFrom != "":
			v, ok := route.ResolvePath(out, f.CopyFrom)
			if !ok {
				continue // spec.md: a missing copy source is skipped, not an error
			}
			val = v
		case f.Template != "":
			val = renderTemplate(f.Template, out)
		}
		setPayloadPath(out.Payload, f.Target, val)
	}
	return out, true, nil
}

func (e *Enrich) Shutdown(context.Context) error { return nil }

func renderTemplate(tmpl string, event model.Event) string {
	return templateRefPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := templateRefPattern.FindStringSubmatch(match)[1]
		val, ok := route.ResolvePath(event, key)
		if !ok {
			return ""
		}
		return fmt.Sprint(val)
	})
}

// setPayloadPath sets a dot-path under payload, creating intermediate maps
// as needed.
func setPayloadPath(payload model.Payload, target string, val any) {
	parts := strings.Split(target, ".")
	cur := map[string]any(payload)
	for i, p := range parts {
		if i == len(parts)-1 {
			cur[p] = val
			return
		}
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
}
