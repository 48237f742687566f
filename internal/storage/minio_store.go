// internal/storage/minio_store.go
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sua-org/cam-scout/internal/config"
)

// SnapshotStore guarda imagens capturadas e devolve a URL do objeto.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type MinioStore struct {
	client   *minio.Client
	bucket   string
	endpoint string
	baseURL  *url.URL
	useSSL   bool
	log      *slog.Logger
}

func NewMinioStore(ctx context.Context, cfg config.MinIOConfig) (*MinioStore, error) {
	if !cfg.Enabled() {
		return nil, errors.New("MINIO_ACCESS_KEY / MINIO_SECRET_KEY não configurados")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("erro criando cliente MinIO: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Cria bucket se não existir
	if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		exists, errBucketExists := cli.BucketExists(ctx, cfg.Bucket)
		if errBucketExists != nil || !exists {
			return nil, fmt.Errorf("erro criando/verificando bucket %s: %w", cfg.Bucket, err)
		}
	}

	var base *url.URL
	if cfg.PublicBaseURL != "" {
		base, err = url.Parse(cfg.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("MINIO_PUBLIC_BASE_URL inválida: %w", err)
		}
	}

	s := &MinioStore{
		client:   cli,
		bucket:   cfg.Bucket,
		endpoint: cli.EndpointURL().Host,
		baseURL:  base,
		useSSL:   cfg.UseSSL,
		log:      slog.With("component", "minio"),
	}
	s.log.Info("connected", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	return s, nil
}

func (s *MinioStore) SaveSnapshot(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return "", fmt.Errorf("erro ao enviar objeto pro MinIO: %w", err)
	}
	s.log.Debug("snapshot stored", "key", key, "bytes", len(data))
	return s.objectURL(key), nil
}

// objectURL usa a base pública quando configurada; senão a URL bruta do endpoint S3.
func (s *MinioStore) objectURL(key string) string {
	if s.baseURL != nil {
		return PublicURL(s.baseURL, key)
	}
	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, s.bucket, key)
}

// PublicURL junta a base pública com a chave do objeto.
func PublicURL(base *url.URL, key string) string {
	u := *base
	if u.Path == "" || u.Path == "/" {
		u.Path = "/" + key
	} else {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + key
	}
	return u.String()
}

// SnapshotKey: snapshots/<ip>/<yyyy>/<mm>/<dd>/<uuid>.jpg
func SnapshotKey(ip string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("snapshots/%s/%04d/%02d/%02d/%s.jpg",
		ip, at.Year(), int(at.Month()), at.Day(), uuid.NewString())
}
