// Package postgres implements the PostgreSQL backend adapter. It opens a
// short-lived single connection per broker attempt, verifies it with a
// trivial round trip, and maps information_schema into the uniform metadata
// shape.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/connectorhq/meridian/pkg/connector/base"
	"github.com/connectorhq/meridian/pkg/connector/core"
	"github.com/connectorhq/meridian/pkg/connector/registry"
	"github.com/connectorhq/meridian/pkg/meridianerrors"
)

const (
	connectorTag   = "postgresql"
	adapterVersion = "1.0.0"
	metadataSchema = "public"
	defaultPort    = "5432"
	defaultSSLMode = "prefer"
)

func init() {
	registry.MustRegister(&registry.Descriptor{
		Tag:         connectorTag,
		Name:        "PostgreSQL",
		Description: "Connects to a PostgreSQL database and enumerates its tables",
		Version:     adapterVersion,
		Schema: []core.ParameterSpec{
			{Name: "host", Required: true, Description: "Server hostname or IP"},
			{Name: "port", Default: defaultPort, Description: "Server port"},
			{Name: "user", Required: true, Description: "Login role"},
			{Name: "password", Required: true, Secret: true, Description: "Login password"},
			{Name: "database", Required: true, Description: "Database name"},
			{Name: "sslmode", Default: defaultSSLMode, Description: "TLS negotiation mode"},
		},
		Factory: NewConnector,
	})
}

// Connector is a PostgreSQL adapter instance bound to one decrypted
// parameter set. Instances are single-use: Connect, operate, Close.
type Connector struct {
	*base.BaseConnector

	params core.Parameters
	conn   *pgx.Conn
}

// NewConnector constructs an adapter from decrypted parameters. No network
// activity happens until Connect.
func NewConnector(params core.Parameters) (core.Connector, error) {
	return &Connector{
		BaseConnector: base.NewBaseConnector(connectorTag, adapterVersion),
		params:        params.Clone(),
	}, nil
}

// connString assembles a libpq-style URL. The password is escaped but never
// leaves this function except inside the dial itself.
func (c *Connector) connString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(c.params["user"]),
		url.QueryEscape(c.params["password"]),
		c.params["host"],
		c.params["port"],
		url.PathEscape(c.params["database"]),
		c.params["sslmode"])
}

// Connect dials the server and authenticates.
func (c *Connector) Connect(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, c.connString())
	if err != nil {
		return translateConnectError(err)
	}
	c.conn = conn

	c.Logger().Debug("connected",
		zap.String("host", c.params["host"]),
		zap.String("database", c.params["database"]))
	return nil
}

// Ping issues the cheapest possible round trip.
func (c *Connector) Ping(ctx context.Context) error {
	if c.conn == nil {
		return meridianerrors.New(meridianerrors.ErrorTypeConnection, "not connected")
	}

	var one int
	if err := c.conn.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeConnection,
			"ping query failed")
	}
	return nil
}

// FetchMetadata enumerates public-schema tables and their columns from
// information_schema.
func (c *Connector) FetchMetadata(ctx context.Context) (*core.Metadata, error) {
	if c.conn == nil {
		return nil, meridianerrors.New(meridianerrors.ErrorTypeConnection, "not connected")
	}

	var serverVersion, currentDB string
	err := c.conn.QueryRow(ctx,
		"SELECT current_setting('server_version'), current_database()").
		Scan(&serverVersion, &currentDB)
	if err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
			"failed to read server version")
	}

	tables, err := c.listTables(ctx)
	if err != nil {
		return nil, err
	}

	resources := make([]core.Resource, 0, len(tables))
	for _, table := range tables {
		fields, err := c.listColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		resources = append(resources, core.Resource{
			Name:   table,
			Kind:   core.ResourceKindTable,
			Fields: fields,
		})
	}

	return &core.Metadata{
		SourceType: connectorTag,
		Name:       currentDB,
		Version:    serverVersion,
		Resources:  resources,
	}, nil
}

func (c *Connector) listTables(ctx context.Context) ([]string, error) {
	const query = `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := c.conn.Query(ctx, query, metadataSchema)
	if err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
			"failed to enumerate tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
				"failed to scan table name")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
			"error iterating tables")
	}
	return tables, nil
}

func (c *Connector) listColumns(ctx context.Context, table string) ([]core.Field, error) {
	const query = `
		SELECT c.column_name, c.data_type, c.is_nullable,
		       EXISTS (
		           SELECT 1 FROM information_schema.key_column_usage kcu
		           JOIN information_schema.table_constraints tc
		             ON tc.constraint_name = kcu.constraint_name
		            AND tc.table_schema = kcu.table_schema
		           WHERE tc.constraint_type = 'PRIMARY KEY'
		             AND kcu.table_schema = c.table_schema
		             AND kcu.table_name = c.table_name
		             AND kcu.column_name = c.column_name
		       ) AS is_primary
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := c.conn.Query(ctx, query, metadataSchema, table)
	if err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
			"failed to enumerate columns")
	}
	defer rows.Close()

	var fields []core.Field
	for rows.Next() {
		var (
			name, dataType, nullable string
			primary                  bool
		)
		if err := rows.Scan(&name, &dataType, &nullable, &primary); err != nil {
			return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
				"failed to scan column")
		}
		fields = append(fields, core.Field{
			Name:     name,
			Type:     MapFieldType(dataType),
			Nullable: nullable == "YES",
			Primary:  primary,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
			"error iterating columns")
	}
	return fields, nil
}

// Close releases the connection. Safe to call after a failed Connect.
func (c *Connector) Close(ctx context.Context) error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(ctx)
	c.conn = nil
	if err != nil {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeConnection,
			"failed to close connection")
	}
	return nil
}

// MapFieldType normalizes an information_schema data_type into the uniform
// field type set.
func MapFieldType(dataType string) core.FieldType {
	switch strings.ToLower(dataType) {
	case "smallint", "integer", "bigint", "smallserial", "serial", "bigserial":
		return core.FieldTypeInt
	case "real", "double precision", "numeric", "decimal", "money":
		return core.FieldTypeFloat
	case "boolean":
		return core.FieldTypeBool
	case "timestamp without time zone", "timestamp with time zone", "timestamp":
		return core.FieldTypeTimestamp
	case "date":
		return core.FieldTypeDate
	case "time without time zone", "time with time zone", "time":
		return core.FieldTypeTime
	case "json", "jsonb":
		return core.FieldTypeJSON
	case "bytea":
		return core.FieldTypeBinary
	default:
		return core.FieldTypeString
	}
}

// translateConnectError maps driver failures into the uniform taxonomy.
// Authentication failures are permanent; everything else at dial time is
// treated as a transient connection error.
func translateConnectError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "SQLSTATE 28P01") || strings.Contains(msg, "SQLSTATE 28000") {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeAuthentication,
			"authentication rejected by server")
	}
	if strings.Contains(msg, "SQLSTATE 3D000") {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeValidation,
			"database does not exist")
	}
	return meridianerrors.Wrap(err, meridianerrors.ErrorTypeConnection,
		"failed to connect to server")
}
