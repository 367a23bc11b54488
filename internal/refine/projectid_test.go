package refine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
)

func TestProjectIDFromLocation(t *testing.T) {
	assert.Equal(t, "12345", ProjectIDFromLocation("/project?project=12345"))
	assert.Equal(t, "7", ProjectIDFromLocation("http://refine:3333/project?project=7&ui=new"))
	assert.Empty(t, ProjectIDFromLocation("/project"))
	assert.Empty(t, ProjectIDFromLocation(""))
}

func TestProjectIDFromBody_JSONFields(t *testing.T) {
	assert.Equal(t, "42", ProjectIDFromBody([]byte(`{"project": 42}`)))
	assert.Equal(t, "42", ProjectIDFromBody([]byte(`{"projectID": "42"}`)))
	assert.Equal(t, "42", ProjectIDFromBody([]byte(`{"projectId": "42"}`)))
}

func TestProjectIDFromBody_PathShape(t *testing.T) {
	body := `<html><a href="/project?project=99">open</a></html>`
	assert.Equal(t, "99", ProjectIDFromBody([]byte(body)))
}

func TestProjectIDFromBody_QuotedKey(t *testing.T) {
	body := `callback({"projectId": "314159", "ok": true})`
	assert.Equal(t, "314159", ProjectIDFromBody([]byte(body)))
}

func TestExtractProjectID_Chain(t *testing.T) {
	id, err := ExtractProjectID(ExtractInputs{
		Status:   302,
		Location: "/project?project=11",
		Body:     []byte(`{"project": 22}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "11", id)

	id, err = ExtractProjectID(ExtractInputs{
		Status:   200,
		FinalURL: "http://refine:3333/project?project=33",
	})
	require.NoError(t, err)
	assert.Equal(t, "33", id)

	id, err = ExtractProjectID(ExtractInputs{
		Status: 200,
		Body:   []byte(`{"projectId": "44"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "44", id)
}

func TestExtractProjectID_Exhausted(t *testing.T) {
	_, err := ExtractProjectID(ExtractInputs{
		Status:   200,
		FinalURL: "http://refine:3333/command/core/import-project",
		Body:     []byte("ok"),
	})
	require.Error(t, err)
	assert.Equal(t, 502, apierr.StatusOf(err))
	assert.True(t, strings.Contains(err.Error(), "location=none"))
}
