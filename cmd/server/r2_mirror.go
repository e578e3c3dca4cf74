package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gemkitchen.ai/internal/persistence/r2s3"
)

// rotateLayoutMirrored cuts event segments every minute so uploads lag less.
const rotateLayoutMirrored = "2006-01-02-15-04"

func buildMirror(ctx context.Context, cfg mirrorConfig, dataDir string, logger logrus.FieldLogger) (*r2s3.Mirror, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("GK_S3_MIRROR=true but GK_S3_BUCKET is empty")
	}
	client, err := r2s3.New(ctx, r2s3.Config{
		Endpoint:        cfg.Endpoint,
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		PathStyle:       cfg.PathStyle,
	})
	if err != nil {
		return nil, err
	}
	return r2s3.NewMirror(client, r2s3.MirrorOptions{
		DataDir:       dataDir,
		Prefix:        cfg.Prefix,
		Workers:       cfg.Workers,
		QueueCapacity: cfg.QueueCapacity,
		EnqueueWait:   25 * time.Millisecond,
		Logger:        logger.WithField("component", "mirror"),
	}), nil
}
