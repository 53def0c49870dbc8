// Package sheets implements the Google Sheets backend adapter. A
// spreadsheet maps to a metadata source whose resources are its sheets;
// each sheet's fields come from its first row, treated as a header.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/connectorhq/meridian/pkg/connector/base"
	"github.com/connectorhq/meridian/pkg/connector/core"
	"github.com/connectorhq/meridian/pkg/connector/registry"
	"github.com/connectorhq/meridian/pkg/meridianerrors"
)

const (
	connectorTag   = "google_sheets"
	adapterVersion = "1.0.0"
)

func init() {
	registry.MustRegister(&registry.Descriptor{
		Tag:         connectorTag,
		Name:        "Google Sheets",
		Description: "Connects to a Google spreadsheet and enumerates its sheets",
		Version:     adapterVersion,
		Schema: []core.ParameterSpec{
			{Name: "spreadsheet_id", Required: true, Description: "Target spreadsheet ID"},
			{Name: "client_id", Required: true, Description: "OAuth client ID"},
			{Name: "client_secret", Required: true, Secret: true, Description: "OAuth client secret"},
			{Name: "refresh_token", Required: true, Secret: true, Description: "OAuth refresh token"},
			{Name: "access_token", Secret: true, Description: "Current access token, refreshed when expired"},
		},
		Factory: NewConnector,
	})
}

// Connector is a Google Sheets adapter instance bound to one decrypted
// parameter set.
type Connector struct {
	*base.BaseConnector

	params  core.Parameters
	service *sheetsapi.Service

	// endpoint overrides the API base URL; set only by tests.
	endpoint string
}

// NewConnector constructs an adapter from decrypted parameters.
func NewConnector(params core.Parameters) (core.Connector, error) {
	return &Connector{
		BaseConnector: base.NewBaseConnector(connectorTag, adapterVersion),
		params:        params.Clone(),
	}, nil
}

// Connect builds the Sheets service over an auto-refreshing token source.
// No API call happens here; the first request is issued by Ping or
// FetchMetadata.
func (c *Connector) Connect(ctx context.Context) error {
	oauthCfg := &oauth2.Config{
		ClientID:     c.params["client_id"],
		ClientSecret: c.params["client_secret"],
		Endpoint: oauth2.Endpoint{
			TokenURL: "https://oauth2.googleapis.com/token",
		},
	}
	token := &oauth2.Token{
		AccessToken:  c.params["access_token"],
		RefreshToken: c.params["refresh_token"],
	}

	opts := []option.ClientOption{
		option.WithTokenSource(oauthCfg.TokenSource(ctx, token)),
	}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	service, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeConfig,
			"failed to build sheets service")
	}
	c.service = service

	c.Logger().Debug("service ready",
		zap.String("spreadsheet_id", c.params["spreadsheet_id"]))
	return nil
}

// Ping fetches the spreadsheet shell without grid data, the cheapest call
// that exercises both the OAuth flow and spreadsheet access.
func (c *Connector) Ping(ctx context.Context) error {
	if c.service == nil {
		return meridianerrors.New(meridianerrors.ErrorTypeConnection, "not connected")
	}

	_, err := c.service.Spreadsheets.Get(c.params["spreadsheet_id"]).
		Fields("spreadsheetId").Context(ctx).Do()
	if err != nil {
		return translateError(err)
	}
	return nil
}

// FetchMetadata returns the spreadsheet title and one sheet resource per
// sheet, with fields read from each sheet's header row.
func (c *Connector) FetchMetadata(ctx context.Context) (*core.Metadata, error) {
	if c.service == nil {
		return nil, meridianerrors.New(meridianerrors.ErrorTypeConnection, "not connected")
	}

	spreadsheetID := c.params["spreadsheet_id"]
	spreadsheet, err := c.service.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, translateError(err)
	}
	if spreadsheet.Properties == nil {
		return nil, meridianerrors.New(meridianerrors.ErrorTypeMetadataParse,
			"spreadsheet response missing properties")
	}

	resources := make([]core.Resource, 0, len(spreadsheet.Sheets))
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties == nil {
			return nil, meridianerrors.New(meridianerrors.ErrorTypeMetadataParse,
				"sheet response missing properties")
		}
		title := sheet.Properties.Title

		fields, err := c.headerFields(ctx, spreadsheetID, title)
		if err != nil {
			return nil, err
		}

		resources = append(resources, core.Resource{
			Name:   title,
			Kind:   core.ResourceKindSheet,
			Fields: fields,
		})
	}

	return &core.Metadata{
		SourceType: connectorTag,
		Name:       spreadsheet.Properties.Title,
		Resources:  resources,
	}, nil
}

// headerFields reads the first row of a sheet and maps each non-empty cell
// to a string field. Sheets carry no type declarations, so every field is a
// nullable string.
func (c *Connector) headerFields(ctx context.Context, spreadsheetID, sheetTitle string) ([]core.Field, error) {
	// Quote the title so sheet names with spaces form a valid A1 range.
	readRange := fmt.Sprintf("'%s'!1:1", strings.ReplaceAll(sheetTitle, "'", "''"))

	values, err := c.service.Spreadsheets.Values.Get(spreadsheetID, readRange).
		Context(ctx).Do()
	if err != nil {
		return nil, translateError(err)
	}

	if len(values.Values) == 0 {
		return nil, nil
	}

	var fields []core.Field
	for _, cell := range values.Values[0] {
		header := strings.TrimSpace(fmt.Sprintf("%v", cell))
		if header == "" {
			continue
		}
		fields = append(fields, core.Field{
			Name:     header,
			Type:     core.FieldTypeString,
			Nullable: true,
		})
	}
	return fields, nil
}

// Close drops the service reference; the underlying HTTP client needs no
// teardown.
func (c *Connector) Close(_ context.Context) error {
	c.service = nil
	return nil
}

// translateError maps Google API failures into the uniform taxonomy using
// the HTTP status class.
func translateError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return meridianerrors.Wrap(err, meridianerrors.ErrorTypeAuthentication,
				"access rejected by the sheets API")
		case 404:
			return meridianerrors.Wrap(err, meridianerrors.ErrorTypeNotFound,
				"spreadsheet not found")
		case 429:
			return meridianerrors.Wrap(err, meridianerrors.ErrorTypeRateLimit,
				"sheets API rate limit exceeded")
		}
		if apiErr.Code >= 500 {
			return meridianerrors.Wrap(err, meridianerrors.ErrorTypeConnection,
				"sheets API unavailable")
		}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeAuthentication,
			"token refresh rejected")
	}

	return meridianerrors.Wrap(err, meridianerrors.ErrorTypeConnection,
		"sheets API request failed")
}
