package mongoSource

import (
	"context"
	"errors"
	"fmt"

	"github.com/akolanti/docsync/internal/adapter"
	"github.com/akolanti/docsync/internal/cdc"
	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/domain/commonModels"
	"github.com/akolanti/docsync/pkg/logger_i"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Client reads articles and opens change streams on one database.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	logger *logger_i.Logger
}

// Connect dials and pings the store; a failed ping is returned so startup can abort.
func Connect(ctx context.Context, uri string, dbName string) (*Client, error) {
	logger := logger_i.NewLogger("MongoSource").With("db", dbName)

	ctx, cancel := context.WithTimeout(ctx, config.MongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(config.MongoConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info("MongoDB connected")
	return &Client{client: client, db: client.Database(dbName), logger: logger}, nil
}

// Watch opens a change stream filtered to the given operation types with update lookup.
func (c *Client) Watch(ctx context.Context, collection string, operations []string, resumeAfter bson.Raw) (cdc.ChangeStream, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "operationType", Value: bson.D{{Key: "$in", Value: operations}}}}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if resumeAfter != nil {
		opts.SetResumeAfter(resumeAfter)
	}

	stream, err := c.db.Collection(collection).Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// FindDocument loads one article. Ids are tried as ObjectID first, then as plain strings.
func (c *Client) FindDocument(ctx context.Context, collection string, documentId string) (map[string]any, error) {
	coll := c.db.Collection(collection)

	for _, filter := range idFilters(documentId) {
		var doc bson.M
		err := coll.FindOne(ctx, filter).Decode(&doc)
		if err == nil {
			return adapter.NormalizeMap(doc), nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, classify(fmt.Errorf("find %s/%s: %w", collection, documentId, err))
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", commonModels.ErrDocumentNotFound, collection, documentId)
}

func (c *Client) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		c.logger.Error("Error disconnecting mongo", "error", err)
		return err
	}
	c.logger.Info("MongoDB disconnected")
	return nil
}

func idFilters(documentId string) []bson.D {
	filters := make([]bson.D, 0, 2)
	if oid, err := primitive.ObjectIDFromHex(documentId); err == nil {
		filters = append(filters, bson.D{{Key: "_id", Value: oid}})
	}
	return append(filters, bson.D{{Key: "_id", Value: documentId}})
}

// classify marks failures the worker should retry.
func classify(err error) error {
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", commonModels.ErrTransient, err)
	}
	return err
}
