package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauntlethq/gauntlet/pkg/plugins"
)

func TestTypeCatalog(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(http.MethodGet, "/api/v1/types/detector", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var catalog TypeListResponse
	decodeBody(t, resp, &catalog)
	assert.Equal(t, plugins.FamilyDetector, catalog.Family)
	require.Equal(t, 2, catalog.Total)
	// ListTypes sorts by type name
	assert.Equal(t, "refusal", catalog.Types[0].Type)
	assert.Equal(t, "toxicity", catalog.Types[1].Type)

	resp = f.do(http.MethodGet, "/api/v1/types/scorer/substring", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var descriptor plugins.Descriptor
	decodeBody(t, resp, &descriptor)
	assert.Equal(t, "substring", descriptor.Type)
	assert.Equal(t, plugins.TransportHTTP, descriptor.Execution.Transport)
	require.Len(t, descriptor.Parameters, 2)
	assert.True(t, descriptor.Parameters[0].Required)
}

func TestTypeCatalogMisses(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(http.MethodGet, "/api/v1/types/poets", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(http.MethodGet, "/api/v1/types/detector/no-such-type", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body ErrorResponse
	decodeBody(t, resp, &body)
	assert.Contains(t, body.Error, "no-such-type")
}

func TestDirectInstanceCRUD(t *testing.T) {
	f := newAPIFixture(t)

	seeded, err := f.instances.Add(f.accountID, plugins.FamilyScorer, "substring", "finder", map[string]interface{}{
		"substring": "as an ai",
	})
	require.NoError(t, err)

	resp := f.do(http.MethodGet, "/api/v1/instances/scorer", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listed []plugins.PluginInstance
	decodeBody(t, resp, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, seeded.ID, listed[0].ID)

	resp = f.do(http.MethodGet, "/api/v1/instances/scorer/"+seeded.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched plugins.PluginInstance
	decodeBody(t, resp, &fetched)
	assert.Equal(t, "finder", fetched.Name)
	assert.Equal(t, "as an ai", fetched.Parameters["substring"])

	// Wholesale update replaces name and parameters
	resp = f.do(http.MethodPut, "/api/v1/instances/scorer/"+seeded.ID, UpdateInstanceRequest{
		Name: "refusal-finder",
		Parameters: map[string]interface{}{
			"substring":      "i cannot help",
			"case_sensitive": true,
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated plugins.PluginInstance
	decodeBody(t, resp, &updated)
	assert.Equal(t, seeded.ID, updated.ID)
	assert.Equal(t, "refusal-finder", updated.Name)
	assert.Equal(t, "i cannot help", updated.Parameters["substring"])
	assert.Equal(t, true, updated.Parameters["case_sensitive"])

	// Rejected updates change nothing
	resp = f.do(http.MethodPut, "/api/v1/instances/scorer/"+seeded.ID, UpdateInstanceRequest{
		Name:       "refusal-finder",
		Parameters: map[string]interface{}{"substring": ""},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var rejection ErrorResponse
	decodeBody(t, resp, &rejection)
	require.NotEmpty(t, rejection.Fields)
	assert.Equal(t, "substring", rejection.Fields[0].Field)

	resp = f.do(http.MethodDelete, "/api/v1/instances/scorer/"+seeded.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var removed RemovedResponse
	decodeBody(t, resp, &removed)
	assert.True(t, removed.Removed)

	resp = f.do(http.MethodGet, "/api/v1/instances/scorer/"+seeded.ID, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateInstanceRenameConflict(t *testing.T) {
	f := newAPIFixture(t)

	_, err := f.instances.Add(f.accountID, plugins.FamilyScorer, "substring", "finder", map[string]interface{}{
		"substring": "as an ai",
	})
	require.NoError(t, err)

	second, err := f.instances.Add(f.accountID, plugins.FamilyScorer, "substring", "other", map[string]interface{}{
		"substring": "sorry",
	})
	require.NoError(t, err)

	resp := f.do(http.MethodPut, "/api/v1/instances/scorer/"+second.ID, UpdateInstanceRequest{
		Name:       "finder",
		Parameters: map[string]interface{}{"substring": "sorry"},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestInstancesAreOwnerScoped(t *testing.T) {
	f := newAPIFixture(t)

	seeded, err := f.instances.Add(f.accountID, plugins.FamilyScorer, "substring", "finder", map[string]interface{}{
		"substring": "as an ai",
	})
	require.NoError(t, err)

	_, otherToken := f.newAccount("bob", "hunter2")

	resp := f.request(http.MethodGet, "/api/v1/instances/scorer/"+seeded.ID, nil, otherToken)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.request(http.MethodGet, "/api/v1/instances/scorer", nil, otherToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listed []plugins.PluginInstance
	decodeBody(t, resp, &listed)
	assert.Empty(t, listed)

	// Deleting someone else's instance reports nothing removed
	resp = f.request(http.MethodDelete, "/api/v1/instances/scorer/"+seeded.ID, nil, otherToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var removed RemovedResponse
	decodeBody(t, resp, &removed)
	assert.False(t, removed.Removed)
}
