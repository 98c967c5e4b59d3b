package forbiddenre

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viewvc/viewvc-sub000/pkg/vcauth"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

func TestForbiddenRE(t *testing.T) {
	auth, err := vcauth.New("forbiddenre", "", vcauth.Params{"forbiddenre": `^private$, /\.svn/, \.key$`})
	require.NoError(t, err)

	assert.False(t, auth.CheckRootAccess("private"))
	assert.True(t, auth.CheckRootAccess("public"))
	assert.Equal(t, vclib.AccessUnknown, auth.CheckUniversalAccess("public"))

	assert.True(t, auth.CheckPathAccess("public", nil, vclib.Dir, ""))
	assert.True(t, auth.CheckPathAccess("public", []string{"trunk", "main.go"}, vclib.File, ""))
	assert.False(t, auth.CheckPathAccess("public", []string{"trunk", "server.key"}, vclib.File, ""))
	assert.False(t, auth.CheckPathAccess("public", []string{"trunk", ".svn"}, vclib.Dir, ""))
	// files are not suffixed with a slash
	assert.True(t, auth.CheckPathAccess("public", []string{"trunk", ".svn"}, vclib.File, ""))
}

func TestForbiddenRENegated(t *testing.T) {
	auth, err := New("", vcauth.Params{"forbiddenre": `!^public/`})
	require.NoError(t, err)

	assert.True(t, auth.CheckPathAccess("public", []string{"x"}, vclib.File, ""))
	assert.False(t, auth.CheckPathAccess("other", []string{"x"}, vclib.File, ""))
	assert.False(t, auth.CheckRootAccess("public"))
}

func TestForbiddenREUniversal(t *testing.T) {
	auth, err := New("", nil)
	require.NoError(t, err)
	assert.Equal(t, vclib.AccessGranted, auth.CheckUniversalAccess("r"))

	_, err = New("", vcauth.Params{"forbiddenre": "("})
	assert.Error(t, err)
}
