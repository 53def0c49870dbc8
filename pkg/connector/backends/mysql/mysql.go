// Package mysql implements the MySQL backend adapter on database/sql with
// the go-sql-driver driver. One short-lived connection per broker attempt;
// metadata comes from information_schema.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/connectorhq/meridian/pkg/connector/base"
	"github.com/connectorhq/meridian/pkg/connector/core"
	"github.com/connectorhq/meridian/pkg/connector/registry"
	"github.com/connectorhq/meridian/pkg/meridianerrors"
)

const (
	connectorTag   = "mysql"
	adapterVersion = "1.0.0"
	defaultPort    = "3306"
	defaultCharset = "utf8mb4"
)

// MySQL server error numbers the adapter distinguishes.
const (
	errAccessDenied    = 1045
	errUnknownDatabase = 1049
)

func init() {
	registry.MustRegister(&registry.Descriptor{
		Tag:         connectorTag,
		Name:        "MySQL",
		Description: "Connects to a MySQL database and enumerates its tables",
		Version:     adapterVersion,
		Schema: []core.ParameterSpec{
			{Name: "host", Required: true, Description: "Server hostname or IP"},
			{Name: "port", Default: defaultPort, Description: "Server port"},
			{Name: "user", Required: true, Description: "Login user"},
			{Name: "password", Required: true, Secret: true, Description: "Login password"},
			{Name: "database", Required: true, Description: "Database name"},
			{Name: "charset", Default: defaultCharset, Description: "Connection character set"},
		},
		Factory: NewConnector,
	})
}

// Connector is a MySQL adapter instance bound to one decrypted parameter
// set.
type Connector struct {
	*base.BaseConnector

	params core.Parameters
	db     *sql.DB
}

// NewConnector constructs an adapter from decrypted parameters.
func NewConnector(params core.Parameters) (core.Connector, error) {
	return &Connector{
		BaseConnector: base.NewBaseConnector(connectorTag, adapterVersion),
		params:        params.Clone(),
	}, nil
}

// dsn builds the driver config. Using the driver's own Config type avoids
// hand-escaping credential characters.
func (c *Connector) dsn() string {
	cfg := gomysql.NewConfig()
	cfg.User = c.params["user"]
	cfg.Passwd = c.params["password"]
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.params["host"], c.params["port"])
	cfg.DBName = c.params["database"]
	cfg.Params = map[string]string{"charset": c.params["charset"]}
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// Connect opens the pool and forces an authenticated handshake. database/sql
// dials lazily, so an explicit PingContext here is what actually verifies
// the credentials.
func (c *Connector) Connect(ctx context.Context) error {
	db, err := sql.Open("mysql", c.dsn())
	if err != nil {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeConfig,
			"invalid connection configuration")
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return translateError(err)
	}
	c.db = db

	c.Logger().Debug("connected",
		zap.String("host", c.params["host"]),
		zap.String("database", c.params["database"]))
	return nil
}

// Ping issues the cheapest possible round trip.
func (c *Connector) Ping(ctx context.Context) error {
	if c.db == nil {
		return meridianerrors.New(meridianerrors.ErrorTypeConnection, "not connected")
	}

	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeConnection,
			"ping query failed")
	}
	return nil
}

// FetchMetadata enumerates the schema's tables and columns from
// information_schema.
func (c *Connector) FetchMetadata(ctx context.Context) (*core.Metadata, error) {
	if c.db == nil {
		return nil, meridianerrors.New(meridianerrors.ErrorTypeConnection, "not connected")
	}

	var serverVersion string
	if err := c.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&serverVersion); err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
			"failed to read server version")
	}

	database := c.params["database"]
	tables, err := c.listTables(ctx, database)
	if err != nil {
		return nil, err
	}

	resources := make([]core.Resource, 0, len(tables))
	for _, table := range tables {
		fields, err := c.listColumns(ctx, database, table.name)
		if err != nil {
			return nil, err
		}
		resources = append(resources, core.Resource{
			Name:     table.name,
			Kind:     core.ResourceKindTable,
			Fields:   fields,
			RowCount: table.rowEstimate,
		})
	}

	return &core.Metadata{
		SourceType: connectorTag,
		Name:       database,
		Version:    serverVersion,
		Resources:  resources,
	}, nil
}

type tableInfo struct {
	name        string
	rowEstimate int64
}

func (c *Connector) listTables(ctx context.Context, database string) ([]tableInfo, error) {
	const query = `
		SELECT table_name, COALESCE(table_rows, 0)
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := c.db.QueryContext(ctx, query, database)
	if err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
			"failed to enumerate tables")
	}
	defer rows.Close()

	var tables []tableInfo
	for rows.Next() {
		var t tableInfo
		if err := rows.Scan(&t.name, &t.rowEstimate); err != nil {
			return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
				"failed to scan table row")
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
			"error iterating tables")
	}
	return tables, nil
}

func (c *Connector) listColumns(ctx context.Context, database, table string) ([]core.Field, error) {
	const query = `
		SELECT column_name, data_type, is_nullable, column_key
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`

	rows, err := c.db.QueryContext(ctx, query, database, table)
	if err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
			"failed to enumerate columns")
	}
	defer rows.Close()

	var fields []core.Field
	for rows.Next() {
		var name, dataType, nullable, columnKey string
		if err := rows.Scan(&name, &dataType, &nullable, &columnKey); err != nil {
			return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
				"failed to scan column")
		}
		fields = append(fields, core.Field{
			Name:     name,
			Type:     MapFieldType(dataType),
			Nullable: nullable == "YES",
			Primary:  columnKey == "PRI",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
			"error iterating columns")
	}
	return fields, nil
}

// Close releases the pool. Safe to call after a failed Connect.
func (c *Connector) Close(_ context.Context) error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
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
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint", "year":
		return core.FieldTypeInt
	case "float", "double", "decimal", "numeric":
		return core.FieldTypeFloat
	case "bit", "bool", "boolean":
		return core.FieldTypeBool
	case "datetime", "timestamp":
		return core.FieldTypeTimestamp
	case "date":
		return core.FieldTypeDate
	case "time":
		return core.FieldTypeTime
	case "json":
		return core.FieldTypeJSON
	case "binary", "varbinary", "tinyblob", "blob", "mediumblob", "longblob":
		return core.FieldTypeBinary
	default:
		return core.FieldTypeString
	}
}

// translateError maps driver failures into the uniform taxonomy.
func translateError(err error) error {
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errAccessDenied:
			return meridianerrors.Wrap(err, meridianerrors.ErrorTypeAuthentication,
				"authentication rejected by server")
		case errUnknownDatabase:
			return meridianerrors.Wrap(err, meridianerrors.ErrorTypeValidation,
				"database does not exist")
		}
	}
	return meridianerrors.Wrap(err, meridianerrors.ErrorTypeConnection,
		"failed to connect to server")
}
