// Package archive mirrors completed analyses into a MongoDB Atlas
// collection as raw documents. The archive is optional: when no cluster
// URI is configured the service runs without it, and archive failures
// never fail the request that produced the analysis.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	connectTimeout = 10 * time.Second
	opTimeout      = 5 * time.Second
)

// ErrNotFound is returned when no archived document matches the script ID.
var ErrNotFound = errors.New("archive: document not found")

// Config holds the Atlas connection settings.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// Document is one archived analysis. ScriptID ties it back to the
// relational row in analyzed_scripts.
type Document struct {
	ScriptID   string    `bson:"script_id" json:"script_id"`
	Filename   string    `bson:"filename" json:"filename"`
	Analysis   bson.M    `bson:"analysis" json:"analysis"`
	ArchivedAt time.Time `bson:"archived_at" json:"archived_at"`
}

// Archive wraps the Mongo collection used for raw analysis documents.
type Archive struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *slog.Logger
}

// Connect dials the cluster and verifies it with a ping.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Archive, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("archive: cluster URI is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(connectTimeout))
	if err != nil {
		return nil, fmt.Errorf("archive: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("archive: ping: %w", err)
	}

	logger.Info("archive connected",
		"database", cfg.Database, "collection", cfg.Collection)

	return &Archive{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		logger: logger,
	}, nil
}

// Put upserts the document keyed by script ID, so re-archiving the same
// analysis is idempotent.
func (a *Archive) Put(ctx context.Context, scriptID, filename string, analysis json.RawMessage) error {
	var payload bson.M
	if err := bson.UnmarshalExtJSON(analysis, false, &payload); err != nil {
		return fmt.Errorf("archive: decoding analysis payload: %w", err)
	}

	doc := Document{
		ScriptID:   scriptID,
		Filename:   filename,
		Analysis:   payload,
		ArchivedAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := a.coll.ReplaceOne(ctx,
		bson.M{"script_id": scriptID},
		doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("archive: put %s: %w", scriptID, err)
	}
	return nil
}

// Get fetches the archived document for the given script ID.
func (a *Archive) Get(ctx context.Context, scriptID string) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc Document
	err := a.coll.FindOne(ctx, bson.M{"script_id": scriptID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archive: get %s: %w", scriptID, err)
	}
	return &doc, nil
}

// List returns the most recently archived documents, newest first.
func (a *Archive) List(ctx context.Context, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := a.coll.Find(ctx, bson.M{},
		options.Find().
			SetSort(bson.D{{Key: "archived_at", Value: -1}}).
			SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("archive: decoding list: %w", err)
	}
	return docs, nil
}

// Delete removes the archived document for the given script ID. Deleting
// a missing document is not an error.
func (a *Archive) Delete(ctx context.Context, scriptID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := a.coll.DeleteOne(ctx, bson.M{"script_id": scriptID}); err != nil {
		return fmt.Errorf("archive: delete %s: %w", scriptID, err)
	}
	return nil
}

// Ping verifies the cluster is still reachable.
func (a *Archive) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return a.client.Ping(ctx, nil)
}

// Close disconnects from the cluster.
func (a *Archive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}
