package model

import "encoding/json"

// MarshalJSON flattens Extra alongside the named fields so the wire shape
// matches spec.md §3: {platform, platform_event, author, author_type, ...}.
func (p Provenance) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+4)
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.Platform != "" {
		out["platform"] = p.Platform
	}
	if p.PlatformEvent != "" {
		out["platform_event"] = p.PlatformEvent
	}
	if p.Author != "" {
		out["author"] = p.Author
	}
	if p.AuthorType != "" {
		out["author_type"] = p.AuthorType
	}
	return json.Marshal(out)
}

// UnmarshalJSON pulls the known fields out and stashes the rest in Extra.
func (p *Provenance) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	get := func(key string) string {
		v, ok := raw[key]
		if !ok {
			return ""
		}
		s, _ := v.(string)
		return s
	}
	p.Platform = get("platform")
	p.PlatformEvent = get("platform_event")
	p.Author = get("author")
	p.AuthorType = get("author_type")
	delete(raw, "platform")
	delete(raw, "platform_event")
	delete(raw, "author")
	delete(raw, "author_type")
	if len(raw) > 0 {
		p.Extra = raw
	}
	return nil
}
