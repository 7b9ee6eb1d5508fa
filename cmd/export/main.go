package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"scholar-trace/models"
	"scholar-trace/storage"
)

// ExportConfig drives the snapshot export job.
type ExportConfig struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	SnapshotBucket   string `envconfig:"SNAPSHOT_S3_BUCKET" required:"true"`
	SnapshotEndpoint string `envconfig:"SNAPSHOT_S3_ENDPOINT" required:"true"`
	SnapshotKey      string `envconfig:"SNAPSHOT_S3_ACCESS_KEY" required:"true"`
	SnapshotSecret   string `envconfig:"SNAPSHOT_S3_SECRET_KEY" required:"true"`
	SnapshotRegion   string `envconfig:"SNAPSHOT_S3_REGION" required:"true"`
	KeepSnapshots    int    `envconfig:"KEEP_SNAPSHOTS" default:"4"`
}

// snapshot is the exported document layout.
type snapshot struct {
	ExportedAt  time.Time           `json:"exported_at"`
	Researchers []models.Researcher `json:"researchers"`
}

func main() {
	log.Println("Starting profile snapshot export...")

	var cfg ExportConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	data, count, err := buildSnapshot(db)
	if err != nil {
		log.Fatalf("Failed to build snapshot: %v", err)
	}

	ctx := context.Background()
	client, err := storage.NewS3Client(ctx, cfg.SnapshotEndpoint, cfg.SnapshotRegion, cfg.SnapshotKey, cfg.SnapshotSecret)
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}

	key := fmt.Sprintf("profiles-%s.json.gz", time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	link, err := storage.Upload(ctx, client, cfg.SnapshotEndpoint, cfg.SnapshotBucket, key, data)
	if err != nil {
		log.Fatalf("Failed to upload snapshot: %v", err)
	}
	log.Printf("Snapshot with %d profiles uploaded to %s", count, link)

	if err := storage.Rotate(ctx, client, cfg.SnapshotBucket, cfg.KeepSnapshots); err != nil {
		log.Fatalf("Failed to rotate old snapshots: %v", err)
	}

	log.Println("Snapshot export finished.")
}

// buildSnapshot serializes all profiles with their publications into a
// gzipped JSON document.
func buildSnapshot(db *gorm.DB) ([]byte, int, error) {
	var researchers []models.Researcher
	if err := db.Preload("Publications").Find(&researchers).Error; err != nil {
		return nil, 0, fmt.Errorf("query researchers: %w", err)
	}

	doc := snapshot{
		ExportedAt:  time.Now().UTC(),
		Researchers: researchers,
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(doc); err != nil {
		return nil, 0, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), len(researchers), nil
}
