package model

// FilterNode is a node in the predicate tree used by route `when.filter`
// clauses and the filter transform (spec.md §4.5/§4.6). Exactly one of the
// leaf fields (Op/Key/...) or the combinator fields (Match/Exclude) is set.
type FilterNode struct {
	// Leaf form.
	Key   string `yaml:"key,omitempty" json:"key,omitempty"`
	Op    string `yaml:"op,omitempty" json:"op,omitempty"` // equals | not_equals | in | matches | exists
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`

	// Combinator form. Match requires all children to hold; Exclude
	// requires none of its children to hold.
	Match   []FilterNode `yaml:"match,omitempty" json:"match,omitempty"`
	Exclude []FilterNode `yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

// IsLeaf reports whether n is a leaf predicate rather than a combinator.
func (n FilterNode) IsLeaf() bool {
	return n.Op != ""
}

// When is the route's match condition: a source, a non-empty set of event
// types, and an optional filter tree (spec.md §3 RouteSpec, invariant 3).
type When struct {
	Source     string     `yaml:"source" json:"source"`
	EventTypes []string   `yaml:"event_types" json:"event_types"`
	Filter     FilterNode `yaml:"filter,omitempty" json:"filter,omitempty"`
}

// TransformSpec names a transform and its opaque configuration.
type TransformSpec struct {
	Type   string         `yaml:"type" json:"type"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// Then names the actor a matching event is delivered to and the
// route-specific delivery configuration passed to Actor.deliver.
type Then struct {
	Actor  string         `yaml:"actor" json:"actor"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// RouteSpec is declarative and immutable once loaded (spec.md §3).
type RouteSpec struct {
	Name       string          `yaml:"name" json:"name"`
	When       When            `yaml:"when" json:"when"`
	Transforms []TransformSpec `yaml:"transforms,omitempty" json:"transforms,omitempty"`
	Then       Then            `yaml:"then" json:"then"`
	With       map[string]any  `yaml:"with,omitempty" json:"with,omitempty"`
}

// SourceSpec declares one source instance and the connector that backs it.
type SourceSpec struct {
	ID        string         `yaml:"id" json:"id"`
	Connector string         `yaml:"connector" json:"connector"`
	Config    map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// ActorSpec declares one actor instance and the connector that backs it.
type ActorSpec struct {
	ID        string         `yaml:"id" json:"id"`
	Connector string         `yaml:"connector" json:"connector"`
	Config    map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// LoggerSpec declares one Observer Bus subscriber and the connector that
// backs it (spec.md §4.8/§6).
type LoggerSpec struct {
	ID        string         `yaml:"id" json:"id"`
	Connector string         `yaml:"connector" json:"connector"`
	Config    map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}
