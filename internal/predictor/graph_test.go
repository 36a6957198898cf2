package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/navaccel/internal/nav"
)

func TestNewGraph(t *testing.T) {
	t.Run("builds a valid graph", func(t *testing.T) {
		g, err := NewGraph([]RouteDefinition{
			{Path: "/dashboard", Roles: []nav.Role{nav.RoleUser}, Children: []string{"/dashboard/deposit"}},
			{Path: "/dashboard/deposit", Roles: []nav.Role{nav.RoleUser}},
		})
		require.NoError(t, err)

		assert.True(t, g.Has("/dashboard"))
		assert.Equal(t, []string{"/dashboard/deposit"}, g.Children("/dashboard"))
		assert.Empty(t, g.Children("/dashboard/deposit"))
		assert.Nil(t, g.Children("/nowhere"))
		assert.True(t, g.IsChild("/dashboard", "/dashboard/deposit"))
		assert.False(t, g.IsChild("/dashboard/deposit", "/dashboard"))
		assert.True(t, g.Allows("/dashboard", nav.RoleUser))
		assert.False(t, g.Allows("/dashboard", nav.RoleAdmin))
		assert.Equal(t, []string{"/dashboard", "/dashboard/deposit"}, g.Paths())
	})

	t.Run("children slice is a copy", func(t *testing.T) {
		g, err := NewGraph([]RouteDefinition{
			{Path: "/a", Roles: []nav.Role{nav.RoleUser}, Children: []string{"/b"}},
			{Path: "/b", Roles: []nav.Role{nav.RoleUser}},
		})
		require.NoError(t, err)

		children := g.Children("/a")
		children[0] = "/mutated"
		assert.Equal(t, []string{"/b"}, g.Children("/a"))
	})

	cases := map[string][]RouteDefinition{
		"empty path":       {{Path: "", Roles: []nav.Role{nav.RoleUser}}},
		"relative path":    {{Path: "dashboard", Roles: []nav.Role{nav.RoleUser}}},
		"duplicate route":  {{Path: "/a", Roles: []nav.Role{nav.RoleUser}}, {Path: "/a", Roles: []nav.Role{nav.RoleUser}}},
		"no roles":         {{Path: "/a"}},
		"unknown role":     {{Path: "/a", Roles: []nav.Role{"root"}}},
		"undeclared child": {{Path: "/a", Roles: []nav.Role{nav.RoleUser}, Children: []string{"/ghost"}}},
		"repeated child": {
			{Path: "/a", Roles: []nav.Role{nav.RoleUser}, Children: []string{"/b", "/b"}},
			{Path: "/b", Roles: []nav.Role{nav.RoleUser}},
		},
	}
	for name, defs := range cases {
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := NewGraph(defs)
			assert.ErrorIs(t, err, ErrInvalidGraph)
		})
	}
}
