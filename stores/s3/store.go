package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"designdeck/core"
)

const keyPrefix = "designs/"

type s3Store struct {
	client *awss3.Client
	bucket string
}

// NewStore creates an S3-backed design store. Each design is one JSON object
// under designs/<id>.json.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}
	return &s3Store{
		client: awss3.NewFromConfig(cfg),
		bucket: bucketName,
	}
}

func designKey(id string) string {
	return keyPrefix + path.Base(id) + ".json"
}

func (s *s3Store) List(ctx context.Context) ([]*core.Design, error) {
	output, err := s.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(keyPrefix),
	})
	if err != nil {
		return nil, err
	}

	designs := make([]*core.Design, 0, len(output.Contents))
	for _, object := range output.Contents {
		if !strings.HasSuffix(*object.Key, ".json") {
			continue
		}
		d, err := s.getByKey(ctx, *object.Key)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"key":   *object.Key,
				"error": err,
			}).Warn("Skipping unreadable design object")
			continue
		}
		designs = append(designs, d.Meta())
	}
	return designs, nil
}

func (s *s3Store) Get(ctx context.Context, id string) (*core.Design, error) {
	return s.getByKey(ctx, designKey(id))
}

func (s *s3Store) getByKey(ctx context.Context, key string) (*core.Design, error) {
	resp, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *s3types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, core.ErrDesignNotFound
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var d core.Design
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *s3Store) Save(ctx context.Context, design *core.Design) error {
	stored := design.Clone()
	now := time.Now()
	if existing, err := s.Get(ctx, design.ID); err == nil {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(designKey(design.ID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return err
	}
	logrus.WithField("design_id", design.ID).Info("Design saved successfully")
	return nil
}

func (s *s3Store) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(designKey(id)),
	})
	return err
}
