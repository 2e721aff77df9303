package mongotesting

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/malbeclabs/procurement-agent/internal/dataset"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
)

type DBConfig struct {
	Database       string
	Collection     string
	ContainerImage string
}

func (cfg *DBConfig) Validate() error {
	if cfg.Database == "" {
		cfg.Database = "procurement_test"
	}
	if cfg.Collection == "" {
		cfg.Collection = "purchase_orders"
	}
	if cfg.ContainerImage == "" {
		cfg.ContainerImage = "mongo:7"
	}
	return nil
}

// NewDB starts a MongoDB container and returns a connected collection. The
// container is terminated when the test completes.
func NewDB(t testing.TB, cfg *DBConfig) *dataset.Mongo {
	ctx := t.Context()

	if cfg == nil {
		cfg = &DBConfig{}
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("failed to validate DB config: %v", err)
	}

	// Retry container start up to 3 times for retryable errors
	var container *tcmongo.MongoDBContainer
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		var err error
		container, err = tcmongo.Run(ctx, cfg.ContainerImage)
		if err != nil {
			lastErr = err
			if isRetryableContainerStartErr(err) && attempt < 3 {
				time.Sleep(time.Duration(attempt) * 750 * time.Millisecond)
				continue
			}
			t.Fatalf("failed to start mongo container after retries: %v", lastErr)
		}
		break
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate mongo container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := dataset.Connect(ctx, dataset.MongoConfig{
		Logger:     slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
		URI:        uri,
		Database:   cfg.Database,
		Collection: cfg.Collection,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(context.Background()); err != nil {
			t.Logf("failed to close mongo client: %v", err)
		}
	})
	return db
}

func isRetryableContainerStartErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, fragment := range []string{"wait until ready", "mapped port", "timeout", "context deadline exceeded", "connection refused"} {
		if strings.Contains(s, fragment) {
			return true
		}
	}
	return false
}

// Seed inserts docs and fails the test on error.
func Seed(t testing.TB, db *dataset.Mongo, docs ...any) {
	n, err := db.InsertMany(t.Context(), docs)
	require.NoError(t, err)
	require.Equal(t, len(docs), n, fmt.Sprintf("seeded %d of %d documents", n, len(docs)))
}
