// api/schemas/schemas_test.go
package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    RoleID
		wantErr bool
	}{
		{"nurse", RoleNurse, false},
		{"  Nurse ", RoleNurse, false},
		{"Admin-A", RoleAdminA, false},
		{"user b", RoleUserB, false},
		{"janitor", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownRole)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoleFromTags(t *testing.T) {
	role, err := RoleFromTags([]string{"@smoke", "@nurse", "@role:provider"})
	require.NoError(t, err)
	assert.Equal(t, RoleProvider, role, "explicit role tag wins")

	role, err = RoleFromTags([]string{"@regression", "@enroller", "@admin_a"})
	require.NoError(t, err)
	assert.Equal(t, RoleEnroller, role, "first bare role tag wins")

	_, err = RoleFromTags([]string{"@smoke"})
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = RoleFromTags([]string{"@role:janitor", "@nurse"})
	assert.ErrorIs(t, err, ErrUnknownRole, "a malformed explicit tag is not silently ignored")
}

func TestAllRolesIsSortedAndClosed(t *testing.T) {
	roles := AllRoles()
	assert.Len(t, roles, 8)
	assert.IsIncreasing(t, roles)
	for _, r := range roles {
		assert.True(t, r.Valid())
	}
	assert.False(t, RoleID("root").Valid())
}

func TestLocatorValidate(t *testing.T) {
	assert.NoError(t, CSS("#save").Validate())
	assert.NoError(t, ID("save").Validate())
	assert.ErrorContains(t, Locator{Strategy: "link-text", Query: "Save"}.Validate(), "unsupported strategy")
	assert.ErrorContains(t, XPath("  ").Validate(), "empty query")
	assert.Equal(t, "css=#save", CSS("#save").String())
}

func TestXPathTemplate(t *testing.T) {
	row := XPathTemplate("//tr[td[normalize-space()=%s]]")

	assert.Equal(t, XPath("//tr[td[normalize-space()='Jane Doe']]"), row("Jane Doe"))
	assert.Equal(t, `//tr[td[normalize-space()="Conan O'Brien"]]`, row("Conan O'Brien").Query)
	assert.Equal(t,
		`//tr[td[normalize-space()=concat('say "hi" to ', "'", 'em')]]`,
		row(`say "hi" to 'em`).Query)

	// Templates hold no state between calls.
	assert.Equal(t, row("A"), row("A"))
}

func TestCSSTemplate(t *testing.T) {
	tab := CSSTemplate("[data-tab='%s']")
	assert.Equal(t, CSS("[data-tab='billing']"), tab("billing"))
}

func TestLocatorYAML(t *testing.T) {
	var l Locator
	require.NoError(t, yaml.Unmarshal([]byte("strategy: xpath\nquery: //div[@id='x']\n"), &l))
	assert.Equal(t, XPath("//div[@id='x']"), l)
}

func TestBackendAndState(t *testing.T) {
	k, err := ParseBackendKind("hybrid")
	require.NoError(t, err)
	assert.Equal(t, BackendHybrid, k)
	_, err = ParseBackendKind("cloud")
	assert.Error(t, err)

	assert.Equal(t, "active", SessionActive.String())
	assert.True(t, Credential{Username: "u"}.Empty())
	assert.False(t, Credential{Username: "u", Password: "p"}.Empty())
}
