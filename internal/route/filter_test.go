package route

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orgloop/engine/internal/model"
)

func sampleEvent() model.Event {
	return model.Event{
		ID:        "e1",
		Source:    "gh",
		Type:      model.EventResourceChanged,
		Timestamp: time.Now().UTC(),
		Provenance: model.Provenance{
			Platform:      "github",
			PlatformEvent: "pull_request.opened",
			Author:        "octocat",
			AuthorType:    "user",
		},
		Payload: model.Payload{
			"pr_number": float64(42),
			"labels":    []any{"bug", "urgent"},
		},
	}
}

func TestEvaluate_EmptyFilterMatchesEverything(t *testing.T) {
	ok, err := Evaluate(model.FilterNode{}, sampleEvent())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluate_EqualsLeaf(t *testing.T) {
	node := model.FilterNode{Key: "provenance.platform_event", Op: "equals", Value: "pull_request.opened"}
	ok, err := Evaluate(node, sampleEvent())
	require.NoError(t, err)
	require.True(t, ok)

	node.Value = "pull_request.closed"
	ok, err = Evaluate(node, sampleEvent())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluate_NotEqualsMissingKeyIsTrue(t *testing.T) {
	node := model.FilterNode{Key: "payload.missing", Op: "not_equals", Value: "x"}
	ok, err := Evaluate(node, sampleEvent())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluate_InOperator(t *testing.T) {
	node := model.FilterNode{Key: "provenance.author_type", Op: "in", Value: []any{"bot", "user"}}
	ok, err := Evaluate(node, sampleEvent())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluate_MatchesRegex(t *testing.T) {
	node := model.FilterNode{Key: "provenance.platform_event", Op: "matches", Value: `^pull_request\.`}
	ok, err := Evaluate(node, sampleEvent())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluate_ExistsOperator(t *testing.T) {
	ok, err := Evaluate(model.FilterNode{Key: "payload.pr_number", Op: "exists"}, sampleEvent())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Evaluate(model.FilterNode{Key: "payload.missing", Op: "exists"}, sampleEvent())
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = Evaluate(model.FilterNode{Key: "payload.missing", Op: "exists", Value: false}, sampleEvent())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluate_MatchCombinatorRequiresAll(t *testing.T) {
	node := model.FilterNode{Match: []model.FilterNode{
		{Key: "provenance.platform", Op: "equals", Value: "github"},
		{Key: "provenance.author_type", Op: "equals", Value: "user"},
	}}
	ok, err := Evaluate(node, sampleEvent())
	require.NoError(t, err)
	require.True(t, ok)

	node.Match[1].Value = "bot"
	ok, err = Evaluate(node, sampleEvent())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluate_ExcludeCombinatorRejectsAnyMatch(t *testing.T) {
	node := model.FilterNode{Exclude: []model.FilterNode{
		{Key: "provenance.author_type", Op: "equals", Value: "bot"},
	}}
	ok, err := Evaluate(node, sampleEvent())
	require.NoError(t, err)
	require.True(t, ok)

	node.Exclude[0].Value = "user"
	ok, err = Evaluate(node, sampleEvent())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluate_UnknownOperatorErrors(t *testing.T) {
	_, err := Evaluate(model.FilterNode{Key: "payload.pr_number", Op: "bogus"}, sampleEvent())
	require.Error(t, err)
}
