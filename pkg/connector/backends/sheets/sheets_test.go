package sheets

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectorhq/meridian/pkg/connector/core"
	"github.com/connectorhq/meridian/pkg/connector/registry"
	"github.com/connectorhq/meridian/pkg/meridianerrors"
)

const testSpreadsheetID = "test-spreadsheet"

func testParams() core.Parameters {
	return core.Parameters{
		"spreadsheet_id": testSpreadsheetID,
		"client_id":      "client-id",
		"client_secret":  "client-secret",
		"refresh_token":  "refresh-token",
		"access_token":   "access-token",
	}
}

// newFakeAPI serves the two spreadsheet endpoints the adapter calls: the
// spreadsheet shell and per-sheet header rows.
func newFakeAPI(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.Contains(r.URL.Path, "/values/"):
			var row string
			switch {
			case strings.Contains(r.URL.Path, "Orders"):
				row = `["id", "customer", "", "total"]`
			case strings.Contains(r.URL.Path, "Customers"):
				row = `["id", "name"]`
			default:
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprintf(w, `{"range":"A1:D1","majorDimension":"ROWS","values":[%s]}`, row)

		case strings.Contains(r.URL.Path, testSpreadsheetID):
			fmt.Fprint(w, `{
				"spreadsheetId": "test-spreadsheet",
				"properties": {"title": "Quarterly Report"},
				"sheets": [
					{"properties": {"sheetId": 0, "title": "Orders"}},
					{"properties": {"sheetId": 1, "title": "Customers"}}
				]
			}`)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func connectTestAdapter(t *testing.T, endpoint string) *Connector {
	t.Helper()

	conn, err := NewConnector(testParams())
	require.NoError(t, err)

	adapter := conn.(*Connector)
	adapter.endpoint = endpoint
	require.NoError(t, adapter.Connect(context.Background()))
	return adapter
}

func TestDescriptorRegistered(t *testing.T) {
	desc, err := registry.Resolve(connectorTag)
	require.NoError(t, err)

	specs := make(map[string]core.ParameterSpec, len(desc.Schema))
	for _, spec := range desc.Schema {
		specs[spec.Name] = spec
	}
	assert.True(t, specs["client_secret"].Secret)
	assert.True(t, specs["refresh_token"].Secret)
	assert.True(t, specs["access_token"].Secret)
	assert.True(t, specs["spreadsheet_id"].Required)
	assert.False(t, specs["access_token"].Required)
}

func TestPing(t *testing.T) {
	server := newFakeAPI(t)
	defer server.Close()

	adapter := connectTestAdapter(t, server.URL)
	defer adapter.Close(context.Background())

	require.NoError(t, adapter.Ping(context.Background()))
}

func TestFetchMetadataTwoSheets(t *testing.T) {
	server := newFakeAPI(t)
	defer server.Close()

	adapter := connectTestAdapter(t, server.URL)
	defer adapter.Close(context.Background())

	metadata, err := adapter.FetchMetadata(context.Background())
	require.NoError(t, err)

	assert.Equal(t, connectorTag, metadata.SourceType)
	assert.Equal(t, "Quarterly Report", metadata.Name)
	require.Len(t, metadata.Resources, 2)

	orders := metadata.Resources[0]
	assert.Equal(t, "Orders", orders.Name)
	assert.Equal(t, core.ResourceKindSheet, orders.Kind)
	// The empty header cell is skipped.
	require.Len(t, orders.Fields, 3)
	assert.Equal(t, "id", orders.Fields[0].Name)
	assert.Equal(t, "customer", orders.Fields[1].Name)
	assert.Equal(t, "total", orders.Fields[2].Name)
	for _, field := range orders.Fields {
		assert.Equal(t, core.FieldTypeString, field.Type)
		assert.True(t, field.Nullable)
	}

	customers := metadata.Resources[1]
	assert.Equal(t, "Customers", customers.Name)
	require.Len(t, customers.Fields, 2)
}

func TestPingSpreadsheetNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": {"code": 404, "message": "Requested entity was not found.", "status": "NOT_FOUND"}}`)
	}))
	defer server.Close()

	adapter := connectTestAdapter(t, server.URL)
	defer adapter.Close(context.Background())

	err := adapter.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeNotFound))
}

func TestTranslateErrorClasses(t *testing.T) {
	statuses := []struct {
		code int
		want meridianerrors.ErrorType
	}{
		{401, meridianerrors.ErrorTypeAuthentication},
		{403, meridianerrors.ErrorTypeAuthentication},
		{404, meridianerrors.ErrorTypeNotFound},
		{429, meridianerrors.ErrorTypeRateLimit},
		{503, meridianerrors.ErrorTypeConnection},
	}

	for _, tt := range statuses {
		t.Run(fmt.Sprintf("status_%d", tt.code), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.code)
				fmt.Fprintf(w, `{"error": {"code": %d, "message": "scripted failure"}}`, tt.code)
			}))
			defer server.Close()

			adapter := connectTestAdapter(t, server.URL)
			defer adapter.Close(context.Background())

			err := adapter.Ping(context.Background())
			require.Error(t, err)
			assert.True(t, meridianerrors.IsType(err, tt.want))
		})
	}
}

func TestOperationsRequireConnect(t *testing.T) {
	conn, err := NewConnector(testParams())
	require.NoError(t, err)

	err = conn.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeConnection))

	_, err = conn.FetchMetadata(context.Background())
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeConnection))
}
