// Package mongodb implements the MongoDB backend adapter. Collections have
// no declared schema, so metadata fields are inferred from a sampled
// document per collection; an empty collection yields a resource with no
// fields rather than an error.
package mongodb

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/connectorhq/meridian/pkg/connector/base"
	"github.com/connectorhq/meridian/pkg/connector/core"
	"github.com/connectorhq/meridian/pkg/connector/registry"
	"github.com/connectorhq/meridian/pkg/meridianerrors"
)

const (
	connectorTag   = "mongodb"
	adapterVersion = "1.0.0"
)

func init() {
	registry.MustRegister(&registry.Descriptor{
		Tag:         connectorTag,
		Name:        "MongoDB",
		Description: "Connects to a MongoDB deployment and enumerates its collections",
		Version:     adapterVersion,
		Schema: []core.ParameterSpec{
			{Name: "uri", Required: true, Secret: true, Description: "Connection URI, may embed credentials"},
			{Name: "database", Required: true, Description: "Database name"},
		},
		Factory: NewConnector,
	})
}

// Connector is a MongoDB adapter instance bound to one decrypted parameter
// set.
type Connector struct {
	*base.BaseConnector

	params core.Parameters
	client *mongo.Client
}

// NewConnector constructs an adapter from decrypted parameters.
func NewConnector(params core.Parameters) (core.Connector, error) {
	return &Connector{
		BaseConnector: base.NewBaseConnector(connectorTag, adapterVersion),
		params:        params.Clone(),
	}, nil
}

// Connect dials the deployment and forces a handshake. mongo.Connect alone
// does not touch the network, so the explicit ping is what verifies the URI
// and credentials.
func (c *Connector) Connect(ctx context.Context) error {
	opts := options.Client().
		ApplyURI(c.params["uri"]).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeConfig,
			"invalid connection configuration")
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return translateError(err)
	}
	c.client = client

	c.Logger().Debug("connected", zap.String("database", c.params["database"]))
	return nil
}

// Ping issues the cheapest possible round trip.
func (c *Connector) Ping(ctx context.Context) error {
	if c.client == nil {
		return meridianerrors.New(meridianerrors.ErrorTypeConnection, "not connected")
	}
	if err := c.client.Ping(ctx, nil); err != nil {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeConnection,
			"ping failed")
	}
	return nil
}

// FetchMetadata lists the database's collections and infers each
// collection's fields from one sampled document.
func (c *Connector) FetchMetadata(ctx context.Context) (*core.Metadata, error) {
	if c.client == nil {
		return nil, meridianerrors.New(meridianerrors.ErrorTypeConnection, "not connected")
	}

	db := c.client.Database(c.params["database"])

	var buildInfo struct {
		Version string `bson:"version"`
	}
	// Version is advisory; a locked-down deployment may deny buildInfo.
	_ = db.RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&buildInfo)

	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
			"failed to enumerate collections")
	}

	resources := make([]core.Resource, 0, len(names))
	for _, name := range names {
		coll := db.Collection(name)

		count, err := coll.EstimatedDocumentCount(ctx)
		if err != nil {
			return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
				"failed to count collection documents")
		}

		fields, err := c.sampleFields(ctx, coll)
		if err != nil {
			return nil, err
		}

		resources = append(resources, core.Resource{
			Name:     name,
			Kind:     core.ResourceKindCollection,
			Fields:   fields,
			RowCount: count,
		})
	}

	return &core.Metadata{
		SourceType: connectorTag,
		Name:       c.params["database"],
		Version:    buildInfo.Version,
		Resources:  resources,
	}, nil
}

// sampleFields reads one document and maps its top-level keys to uniform
// field types. Empty collections produce no fields.
func (c *Connector) sampleFields(ctx context.Context, coll *mongo.Collection) ([]core.Field, error) {
	var doc bson.D
	err := coll.FindOne(ctx, bson.D{}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeMetadataParse,
			"failed to sample collection document")
	}

	fields := make([]core.Field, 0, len(doc))
	for _, elem := range doc {
		fields = append(fields, core.Field{
			Name:     elem.Key,
			Type:     mapBSONType(elem.Value),
			Nullable: true,
			Primary:  elem.Key == "_id",
		})
	}
	return fields, nil
}

// Close tears down the client. Safe to call after a failed Connect.
func (c *Connector) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	err := c.client.Disconnect(ctx)
	c.client = nil
	if err != nil {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeConnection,
			"failed to disconnect client")
	}
	return nil
}

// mapBSONType normalizes a decoded BSON value into the uniform field type
// set.
func mapBSONType(value interface{}) core.FieldType {
	switch value.(type) {
	case int32, int64:
		return core.FieldTypeInt
	case float64, primitive.Decimal128:
		return core.FieldTypeFloat
	case bool:
		return core.FieldTypeBool
	case primitive.DateTime, primitive.Timestamp:
		return core.FieldTypeTimestamp
	case primitive.Binary:
		return core.FieldTypeBinary
	case bson.D, bson.A, primitive.M:
		return core.FieldTypeJSON
	default:
		return core.FieldTypeString
	}
}

// translateError maps driver failures into the uniform taxonomy.
func translateError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "auth") && strings.Contains(msg, "fail") {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeAuthentication,
			"authentication rejected by server")
	}
	return meridianerrors.Wrap(err, meridianerrors.ErrorTypeConnection,
		"failed to connect to deployment")
}
