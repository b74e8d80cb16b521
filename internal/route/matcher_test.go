package route

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orgloop/engine/internal/model"
)

func TestLoad_RejectsUndeclaredSource(t *testing.T) {
	routes := []model.RouteSpec{{
		Name: "r1",
		When: model.When{Source: "missing", EventTypes: []string{string(model.EventResourceChanged)}},
		Then: model.Then{Actor: "a1"},
	}}
	_, err := Load(routes, nil, []model.ActorSpec{{ID: "a1"}})
	require.Error(t, err)
}

func TestLoad_RejectsUndeclaredActor(t *testing.T) {
	routes := []model.RouteSpec{{
		Name: "r1",
		When: model.When{Source: "gh", EventTypes: []string{string(model.EventResourceChanged)}},
		Then: model.Then{Actor: "missing"},
	}}
	_, err := Load(routes, []model.SourceSpec{{ID: "gh"}}, nil)
	require.Error(t, err)
}

func TestLoad_RejectsEmptyEventTypes(t *testing.T) {
	routes := []model.RouteSpec{{
		Name: "r1",
		When: model.When{Source: "gh"},
		Then: model.Then{Actor: "a1"},
	}}
	_, err := Load(routes, []model.SourceSpec{{ID: "gh"}}, []model.ActorSpec{{ID: "a1"}})
	require.Error(t, err)
}

func TestLoad_RejectsDuplicateRouteNames(t *testing.T) {
	route := model.RouteSpec{
		Name: "r1",
		When: model.When{Source: "gh", EventTypes: []string{string(model.EventResourceChanged)}},
		Then: model.Then{Actor: "a1"},
	}
	_, err := Load([]model.RouteSpec{route, route}, []model.SourceSpec{{ID: "gh"}}, []model.ActorSpec{{ID: "a1"}})
	require.Error(t, err)
}

func TestMatcher_MatchingRoutes(t *testing.T) {
	routes := []model.RouteSpec{
		{
			Name: "resource-changes",
			When: model.When{
				Source:     "gh",
				EventTypes: []string{string(model.EventResourceChanged)},
				Filter:     model.FilterNode{Key: "provenance.author_type", Op: "not_equals", Value: "bot"},
			},
			Then: model.Then{Actor: "slack"},
		},
		{
			Name: "messages",
			When: model.When{Source: "gh", EventTypes: []string{string(model.EventMessageReceived)}},
			Then: model.Then{Actor: "slack"},
		},
	}
	m, err := Load(routes, []model.SourceSpec{{ID: "gh"}}, []model.ActorSpec{{ID: "slack"}})
	require.NoError(t, err)

	matched, err := m.MatchingRoutes(sampleEvent())
	require.NoError(t, err)
	require.Len(t, matched, 1)
	require.Equal(t, "resource-changes", matched[0].Name)
}

func TestMatcher_NoRoutesForUnknownSource(t *testing.T) {
	m, err := Load(nil, nil, nil)
	require.NoError(t, err)
	matched, err := m.MatchingRoutes(sampleEvent())
	require.NoError(t, err)
	require.Empty(t, matched)
}
