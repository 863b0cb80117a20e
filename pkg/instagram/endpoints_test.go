package instagram

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileURL(t *testing.T) {
	e := endpoints{base: BaseURL}
	assert.Equal(t, BaseURL+ProfileEndpoint+"?username=test.user", e.profile("test.user"))
	assert.Equal(t, BaseURL+"/natgeo/", e.profilePage("natgeo"))
}

func TestTimelineURL(t *testing.T) {
	tests := []struct {
		name      string
		after     string
		first     int
		wantFirst float64
	}{
		{"first page", "", 12, 12},
		{"with cursor", "QVFE", 12, 12},
		{"default size", "", 0, DefaultPageSize},
		{"clamped size", "", 500, MaxPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := endpoints{base: BaseURL}.timeline("42", tt.after, tt.first)
			u, err := url.Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, GraphQLEndpoint, u.Path)
			assert.Equal(t, TimelineQueryHash, u.Query().Get("query_hash"))

			var vars map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(u.Query().Get("variables")), &vars))
			assert.Equal(t, "42", vars["id"])
			assert.Equal(t, tt.wantFirst, vars["first"])
			if tt.after == "" {
				assert.NotContains(t, vars, "after")
			} else {
				assert.Equal(t, tt.after, vars["after"])
			}
		})
	}
}

func TestPostURL(t *testing.T) {
	assert.Equal(t, "https://www.instagram.com/p/CxYz/", PostURL("CxYz"))
	assert.Equal(t, "", PostURL(""))

	u, err := url.Parse(endpoints{base: "http://127.0.0.1:9"}.post("CxYz"))
	require.NoError(t, err)
	assert.Equal(t, PostQueryHash, u.Query().Get("query_hash"))
	assert.JSONEq(t, `{"shortcode":"CxYz"}`, u.Query().Get("variables"))
}

func TestIsValidUsername(t *testing.T) {
	assert.True(t, IsValidUsername("nat.geo_1"))
	assert.False(t, IsValidUsername(""))
	assert.False(t, IsValidUsername("has space"))
	assert.False(t, IsValidUsername("user@name"))
	assert.False(t, IsValidUsername("abcdefghijabcdefghijabcdefghijk"))
}

func TestSanitizeUsername(t *testing.T) {
	for in, want := range map[string]string{
		"@natgeo":                           "natgeo",
		"  natgeo  ":                        "natgeo",
		"https://www.instagram.com/natgeo/": "natgeo",
		"instagram.com/natgeo":              "natgeo",
	} {
		assert.Equal(t, want, SanitizeUsername(in), in)
	}
}
