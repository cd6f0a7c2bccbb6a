package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"evita/internal/persistence/s3mirror"
)

type s3MirrorRuntime struct {
	enabled      bool
	rotateLayout string
	mirror       *s3mirror.Mirror
}

func buildS3MirrorRuntime(ctx context.Context, dataDir string) (*s3MirrorRuntime, error) {
	if !envBool("EVITA_S3_MIRROR", false) {
		return &s3MirrorRuntime{enabled: false}, nil
	}

	cfg := s3mirror.Config{
		Region:          strings.TrimSpace(os.Getenv("EVITA_S3_REGION")),
		Bucket:          strings.TrimSpace(os.Getenv("EVITA_S3_BUCKET")),
		Endpoint:        strings.TrimSpace(os.Getenv("EVITA_S3_ENDPOINT")),
		AccessKeyID:     strings.TrimSpace(os.Getenv("EVITA_S3_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("EVITA_S3_SECRET_ACCESS_KEY")),
		PathStyle:       envBool("EVITA_S3_PATH_STYLE", false),
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("EVITA_S3_MIRROR=true but EVITA_S3_BUCKET is not set")
	}

	client, err := s3mirror.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mirror := s3mirror.NewMirror(client, dataDir, s3mirror.MirrorOptions{
		Prefix:  strings.TrimSpace(os.Getenv("EVITA_S3_PREFIX")),
		Workers: envInt("EVITA_S3_UPLOAD_WORKERS", 2),
		Logger:  log.New(os.Stdout, "[mirror] ", log.LstdFlags|log.Lmicroseconds),
	})

	return &s3MirrorRuntime{
		enabled:      true,
		rotateLayout: "2006-01-02-15-04", // 1-minute segments to lower RPO.
		mirror:       mirror,
	}, nil
}

func (r *s3MirrorRuntime) Close() {
	if r == nil || r.mirror == nil {
		return
	}
	r.mirror.Close()
}

func (r *s3MirrorRuntime) Enqueue(localPath string) {
	if r == nil || !r.enabled || r.mirror == nil {
		return
	}
	r.mirror.Enqueue(localPath)
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
