package vcauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viewvc/viewvc-sub000/pkg/errors"
	"github.com/viewvc/viewvc-sub000/pkg/vcauth/status"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

func TestRegistry(t *testing.T) {
	auth, err := New("", "harry", nil)
	require.NoError(t, err)
	assert.Nil(t, auth)

	auth, err = New("permissive", "harry", nil)
	require.NoError(t, err)
	assert.True(t, auth.CheckRootAccess("any"))
	assert.Equal(t, vclib.AccessGranted, auth.CheckUniversalAccess("any"))
	assert.True(t, auth.CheckPathAccess("any", []string{"a"}, vclib.File, ""))

	_, err = New("nope", "harry", nil)
	assert.True(t, errors.Is(err, status.ErrUnknownAuthorizer))

	assert.Contains(t, Registered(), "permissive")
}

func TestParams(t *testing.T) {
	p := Params{"forbidden": " a, ,b ,!c ", "x": "1"}
	assert.Equal(t, []string{"a", "b", "!c"}, p.List("forbidden"))
	assert.Nil(t, p.List("missing"))

	m := p.Merge(Params{"x": "2"})
	assert.Equal(t, "2", m["x"])
	assert.Equal(t, "1", p["x"])
}
