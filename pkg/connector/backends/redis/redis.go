// Package redis implements the Redis backend adapter. Redis has no schema
// to enumerate, so metadata reports each populated logical database from
// INFO keyspace as a keyspace resource with its key count.
package redis

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/connectorhq/meridian/pkg/connector/base"
	"github.com/connectorhq/meridian/pkg/connector/core"
	"github.com/connectorhq/meridian/pkg/connector/registry"
	"github.com/connectorhq/meridian/pkg/meridianerrors"
)

const (
	connectorTag   = "redis"
	adapterVersion = "1.0.0"
	defaultPort    = "6379"
	defaultDB      = "0"
)

func init() {
	registry.MustRegister(&registry.Descriptor{
		Tag:         connectorTag,
		Name:        "Redis",
		Description: "Connects to a Redis server and reports its keyspaces",
		Version:     adapterVersion,
		Schema: []core.ParameterSpec{
			{Name: "host", Required: true, Description: "Server hostname or IP"},
			{Name: "port", Default: defaultPort, Description: "Server port"},
			{Name: "password", Secret: true, Description: "AUTH password, empty when auth is disabled"},
			{Name: "db", Default: defaultDB, Description: "Logical database index"},
		},
		Factory: NewConnector,
	})
}

// Connector is a Redis adapter instance bound to one decrypted parameter
// set.
type Connector struct {
	*base.BaseConnector

	params core.Parameters
	client *goredis.Client
}

// NewConnector constructs an adapter from decrypted parameters. The db
// index is validated here so a malformed record fails before any dial.
func NewConnector(params core.Parameters) (core.Connector, error) {
	if _, err := strconv.Atoi(params["db"]); params["db"] != "" && err != nil {
		return nil, meridianerrors.New(meridianerrors.ErrorTypeValidation,
			"field db must be a numeric database index").WithDetail("field", "db")
	}
	return &Connector{
		BaseConnector: base.NewBaseConnector(connectorTag, adapterVersion),
		params:        params.Clone(),
	}, nil
}

// Connect creates the client and forces a round trip; go-redis dials
// lazily, so the explicit PING is what verifies reachability and AUTH.
func (c *Connector) Connect(ctx context.Context) error {
	db, _ := strconv.Atoi(c.params["db"])
	client := goredis.NewClient(&goredis.Options{
		Addr:     net.JoinHostPort(c.params["host"], c.params["port"]),
		Password: c.params["password"],
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return translateError(err)
	}
	c.client = client

	c.Logger().Debug("connected",
		zap.String("host", c.params["host"]),
		zap.Int("db", db))
	return nil
}

// Ping issues the cheapest possible round trip.
func (c *Connector) Ping(ctx context.Context) error {
	if c.client == nil {
		return meridianerrors.New(meridianerrors.ErrorTypeConnection, "not connected")
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeConnection,
			"ping failed")
	}
	return nil
}

// FetchMetadata reports the server version and the populated logical
// databases from INFO keyspace.
func (c *Connector) FetchMetadata(ctx context.Context) (*core.Metadata, error) {
	if c.client == nil {
		return nil, meridianerrors.New(meridianerrors.ErrorTypeConnection, "not connected")
	}

	serverInfo, err := c.client.Info(ctx, "server").Result()
	if err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
			"failed to read server info")
	}

	keyspaceInfo, err := c.client.Info(ctx, "keyspace").Result()
	if err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
			"failed to read keyspace info")
	}

	resources, err := parseKeyspaces(keyspaceInfo)
	if err != nil {
		return nil, err
	}

	return &core.Metadata{
		SourceType: connectorTag,
		Name:       fmt.Sprintf("db%s", c.params["db"]),
		Version:    parseInfoField(serverInfo, "redis_version"),
		Resources:  resources,
	}, nil
}

// Close releases the client. Safe to call after a failed Connect.
func (c *Connector) Close(_ context.Context) error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	if err != nil {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeConnection,
			"failed to close client")
	}
	return nil
}

// parseKeyspaces converts INFO keyspace output into keyspace resources.
// Lines look like "db0:keys=42,expires=0,avg_ttl=0"; only populated
// databases appear.
func parseKeyspaces(info string) ([]core.Resource, error) {
	var resources []core.Resource
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, stats, ok := strings.Cut(line, ":")
		if !ok || !strings.HasPrefix(name, "db") {
			continue
		}

		var keys int64
		for _, stat := range strings.Split(stats, ",") {
			k, v, ok := strings.Cut(stat, "=")
			if !ok || k != "keys" {
				continue
			}
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, meridianerrors.Newf(meridianerrors.ErrorTypeMetadataParse,
					"unparseable key count for %s", name)
			}
			keys = parsed
		}

		resources = append(resources, core.Resource{
			Name:     name,
			Kind:     core.ResourceKindKeyspace,
			RowCount: keys,
		})
	}
	return resources, nil
}

// parseInfoField extracts one "key:value" field from an INFO section.
func parseInfoField(info, field string) string {
	for _, line := range strings.Split(info, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), ":")
		if ok && k == field {
			return v
		}
	}
	return ""
}

// translateError maps client failures into the uniform taxonomy.
func translateError(err error) error {
	msg := strings.ToUpper(err.Error())
	if strings.Contains(msg, "NOAUTH") || strings.Contains(msg, "WRONGPASS") {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeAuthentication,
			"authentication rejected by server")
	}
	return meridianerrors.Wrap(err, meridianerrors.ErrorTypeConnection,
		"failed to connect to server")
}
