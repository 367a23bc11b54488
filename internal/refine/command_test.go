package refine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
)

func TestResolveCommand_CommandCoreNamespace(t *testing.T) {
	command, err := ResolveCommand([]string{"command", "core", "get-rows", "extra"})
	require.NoError(t, err)
	assert.Equal(t, "get-rows", command)
}

func TestResolveCommand_BareName(t *testing.T) {
	command, err := ResolveCommand([]string{"get-all-project-metadata"})
	require.NoError(t, err)
	assert.Equal(t, "get-all-project-metadata", command)
}

func TestResolveCommand_SkipsEmptySegments(t *testing.T) {
	command, err := ResolveCommand([]string{"", "compute-facets", ""})
	require.NoError(t, err)
	assert.Equal(t, "compute-facets", command)
}

func TestResolveCommand_Empty(t *testing.T) {
	_, err := ResolveCommand([]string{"", ""})
	require.Error(t, err)
	assert.Equal(t, 404, apierr.StatusOf(err))
}

func TestAssertAllowedCommand(t *testing.T) {
	assert.NoError(t, AssertAllowedCommand("get-rows"))
	assert.NoError(t, AssertAllowedCommand("get-csrf-token"))

	err := AssertAllowedCommand("create-project-from-upload")
	require.Error(t, err)
	assert.Equal(t, 403, apierr.StatusOf(err))
}

func TestRequiresProjectOwnership(t *testing.T) {
	assert.True(t, RequiresProjectOwnership("apply-operations"))
	assert.True(t, RequiresProjectOwnership("delete-project"))
	assert.False(t, RequiresProjectOwnership("get-all-project-metadata"))
	assert.False(t, RequiresProjectOwnership("get-csrf-token"))
}

func TestSplitCommandPath(t *testing.T) {
	assert.Equal(t, []string{"command", "core", "get-rows"}, SplitCommandPath("/command/core/get-rows"))
	assert.Equal(t, []string{"get-rows"}, SplitCommandPath("get-rows/"))
}
