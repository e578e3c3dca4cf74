package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gemkitchen.ai/internal/persistence/indexdb"
	"gemkitchen.ai/internal/persistence/sessionstore"
	"gemkitchen.ai/internal/sim/catalogs"
	"gemkitchen.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	sessionstore.Index
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
}

// resultsQuery is served only by the sqlite backend.
type resultsQuery interface {
	BestTime(ctx context.Context, mapID string) (float64, bool, error)
	Results(ctx context.Context, mapID string, limit int) ([]indexdb.Result, error)
}

func openRuntimeIndex(cfg serverConfig, logger logrus.FieldLogger) (runtimeIndex, resultsQuery, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Index.Backend))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index", "sessions.sqlite"))
		if err != nil {
			return nil, nil, err
		}
		return idx, idx, nil
	case "remote":
		if strings.TrimSpace(cfg.Index.RemoteURL) == "" {
			return nil, nil, fmt.Errorf("GK_INDEX_BACKEND=remote but GK_INDEX_REMOTE_URL is empty")
		}
		idx, err := indexdb.OpenRemote(indexdb.RemoteConfig{
			Endpoint:      cfg.Index.RemoteURL,
			Token:         cfg.Index.Token,
			ServerID:      cfg.ServerID,
			BatchSize:     cfg.Index.BatchSize,
			FlushInterval: time.Duration(cfg.Index.FlushMS) * time.Millisecond,
			Logger:        logger.WithField("component", "remote_index"),
		})
		if err != nil {
			return nil, nil, err
		}
		return idx, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported index backend: %s", backend)
	}
}
