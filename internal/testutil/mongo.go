package testutil

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

// SetupTestMongo starts an isolated MongoDB container and returns its
// connection URI plus a cleanup function.
//
// Skipped in -short mode since container startup takes seconds.
func SetupTestMongo(t *testing.T) (string, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Fatalf("Failed to start MongoDB container: %v", err)
	}

	uri, err := mongoContainer.ConnectionString(ctx)
	if err != nil {
		_ = mongoContainer.Terminate(ctx)
		t.Fatalf("Failed to get connection string: %v", err)
	}

	cleanup := func() {
		_ = mongoContainer.Terminate(context.Background())
	}

	return uri, cleanup
}
