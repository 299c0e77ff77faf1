package snapshot

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/vegardkv/travelpredict/config"
	"github.com/vegardkv/travelpredict/logger"
)

// Archiver compresses the processed snapshot area into a zip and optionally
// uploads the result to S3.
type Archiver struct {
	processedDir string
	s3Config     appconfig.S3Config
	s3Client     *s3.Client
	log          *logger.Log
}

func NewArchiver(cfg *appconfig.Config) (*Archiver, error) {
	log := logger.GetLogger()

	a := &Archiver{
		processedDir: cfg.Storage.Snapshots.ProcessedDir,
		s3Config:     cfg.Storage.Archive.S3,
		log:          log,
	}

	if cfg.Storage.Archive.S3.Enabled {
		loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Storage.Archive.S3.Region)}
		if cfg.Storage.Archive.S3.AccessKeyID != "" && cfg.Storage.Archive.S3.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					cfg.Storage.Archive.S3.AccessKeyID,
					cfg.Storage.Archive.S3.SecretAccessKey,
					"",
				),
			))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load AWS configuration: %w", err)
		}
		a.s3Client = s3.NewFromConfig(awsCfg)

		log.WithComponent("archiver").WithFields(logger.Fields{
			"bucket": cfg.Storage.Archive.S3.Bucket,
			"region": cfg.Storage.Archive.S3.Region,
		}).Info("archive upload enabled")
	}

	return a, nil
}

// Compress zips every JSON artifact in the processed directory into
// archive_<timestamp>.zip and removes the compressed files. It returns the
// zip path, or an empty string when there was nothing to compress.
func (a *Archiver) Compress() (string, error) {
	log := a.log.WithComponent("archiver")

	entries, err := os.ReadDir(a.processedDir)
	if err != nil {
		return "", fmt.Errorf("read processed dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		log.Info("no processed snapshots to compress")
		return "", nil
	}

	zipName := fmt.Sprintf("archive_%s.zip", time.Now().Format("20060102150405"))
	zipPath := filepath.Join(a.processedDir, zipName)

	zf, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}

	zw := zip.NewWriter(zf)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(a.processedDir, name))
		if err != nil {
			zw.Close()
			zf.Close()
			os.Remove(zipPath)
			return "", fmt.Errorf("read %s: %w", name, err)
		}
		w, err := zw.Create(name)
		if err == nil {
			_, err = w.Write(data)
		}
		if err != nil {
			zw.Close()
			zf.Close()
			os.Remove(zipPath)
			return "", fmt.Errorf("compress %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		zf.Close()
		os.Remove(zipPath)
		return "", fmt.Errorf("finalize archive: %w", err)
	}
	if err := zf.Close(); err != nil {
		os.Remove(zipPath)
		return "", fmt.Errorf("close archive: %w", err)
	}

	// Sources are removed only after the zip is fully written.
	for _, name := range names {
		if err := os.Remove(filepath.Join(a.processedDir, name)); err != nil {
			log.WithError(err).WithFields(logger.Fields{"artifact": name}).Warn("failed to remove compressed artifact")
		}
	}

	log.WithFields(logger.Fields{"archive": zipName, "artifacts": len(names)}).Info("processed snapshots compressed")
	return zipPath, nil
}

// Upload pushes a finished archive to the configured S3 bucket.
func (a *Archiver) Upload(ctx context.Context, zipPath string) error {
	if a.s3Client == nil {
		return fmt.Errorf("archive upload is not enabled")
	}

	f, err := os.Open(zipPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	key := filepath.Base(zipPath)
	if a.s3Config.Prefix != "" {
		key = strings.TrimSuffix(a.s3Config.Prefix, "/") + "/" + key
	}

	if _, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.s3Config.Bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}

	a.log.WithComponent("archiver").WithFields(logger.Fields{
		"bucket": a.s3Config.Bucket,
		"key":    key,
	}).Info("archive uploaded")
	return nil
}

// Run compresses the processed area and uploads the result when S3 is
// enabled.
func (a *Archiver) Run(ctx context.Context) error {
	zipPath, err := a.Compress()
	if err != nil {
		return err
	}
	if zipPath == "" || a.s3Client == nil {
		return nil
	}
	return a.Upload(ctx, zipPath)
}
