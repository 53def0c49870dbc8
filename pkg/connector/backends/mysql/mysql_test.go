package mysql

import (
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectorhq/meridian/pkg/connector/core"
	"github.com/connectorhq/meridian/pkg/connector/registry"
	"github.com/connectorhq/meridian/pkg/meridianerrors"
)

func TestDescriptorRegistered(t *testing.T) {
	desc, err := registry.Resolve(connectorTag)
	require.NoError(t, err)

	specs := make(map[string]core.ParameterSpec, len(desc.Schema))
	for _, spec := range desc.Schema {
		specs[spec.Name] = spec
	}
	assert.True(t, specs["password"].Secret)
	assert.Equal(t, defaultPort, specs["port"].Default)
	assert.Equal(t, defaultCharset, specs["charset"].Default)
}

func TestDSNHandlesSpecialCharacters(t *testing.T) {
	conn, err := NewConnector(core.Parameters{
		"host": "db.internal", "port": "3306", "user": "app",
		"password": "p@ss/w:rd?&", "database": "appdb", "charset": "utf8mb4",
	})
	require.NoError(t, err)

	dsn := conn.(*Connector).dsn()
	parsed, err := gomysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "app", parsed.User)
	assert.Equal(t, "p@ss/w:rd?&", parsed.Passwd)
	assert.Equal(t, "db.internal:3306", parsed.Addr)
	assert.Equal(t, "appdb", parsed.DBName)
	assert.Equal(t, "utf8mb4", parsed.Params["charset"])
}

func TestMapFieldType(t *testing.T) {
	tests := []struct {
		dataType string
		want     core.FieldType
	}{
		{"int", core.FieldTypeInt},
		{"bigint", core.FieldTypeInt},
		{"tinyint", core.FieldTypeInt},
		{"decimal", core.FieldTypeFloat},
		{"double", core.FieldTypeFloat},
		{"bool", core.FieldTypeBool},
		{"datetime", core.FieldTypeTimestamp},
		{"timestamp", core.FieldTypeTimestamp},
		{"date", core.FieldTypeDate},
		{"time", core.FieldTypeTime},
		{"json", core.FieldTypeJSON},
		{"blob", core.FieldTypeBinary},
		{"varchar", core.FieldTypeString},
		{"text", core.FieldTypeString},
	}

	for _, tt := range tests {
		t.Run(tt.dataType, func(t *testing.T) {
			assert.Equal(t, tt.want, MapFieldType(tt.dataType))
		})
	}
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want meridianerrors.ErrorType
	}{
		{
			name: "access denied",
			err:  &gomysql.MySQLError{Number: errAccessDenied, Message: "Access denied"},
			want: meridianerrors.ErrorTypeAuthentication,
		},
		{
			name: "unknown database",
			err:  &gomysql.MySQLError{Number: errUnknownDatabase, Message: "Unknown database"},
			want: meridianerrors.ErrorTypeValidation,
		},
		{
			name: "other server error",
			err:  &gomysql.MySQLError{Number: 1040, Message: "Too many connections"},
			want: meridianerrors.ErrorTypeConnection,
		},
		{
			name: "plain dial error",
			err:  assert.AnError,
			want: meridianerrors.ErrorTypeConnection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, meridianerrors.IsType(translateError(tt.err), tt.want))
		})
	}
}
