package hardware

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

// S3Storage implements secure storage over an S3-compatible object
// store. Factory-provisioned attestation material is exported to the
// bucket by the provisioning pipeline: keys at <prefix>/keys/<slot> and
// chains at <prefix>/chains/<slot>/NN, read in key order.
type S3Storage struct {
	client     *s3.S3
	bucketName string
	prefix     string
	log        *slog.Logger
}

// NewS3Storage creates an S3 storage backend. An empty endpoint uses
// AWS; set it to target MinIO or another compatible store.
func NewS3Storage(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Storage, error) {
	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}

	return &S3Storage{
		client:     s3.New(sess),
		bucketName: bucketName,
		prefix:     prefix,
		log:        log,
	}, nil
}

func (s *S3Storage) get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		s.log.Debug("failed to fetch object", "key", key, "err", err)
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

// ReadKey reads the provisioned attestation key for the slot.
func (s *S3Storage) ReadKey(ctx context.Context, slot interfaces.AttestationKeySlot) ([]byte, error) {
	return s.get(ctx, path.Join(s.prefix, "keys", slot.String()))
}

// ReadCertChain reads the provisioned certificate chain for the slot.
func (s *S3Storage) ReadCertChain(ctx context.Context, slot interfaces.AttestationKeySlot) ([][]byte, error) {
	dir := path.Join(s.prefix, "chains", slot.String()) + "/"

	listed, err := s.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(dir),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 list %s: %w", dir, err)
	}

	// ListObjectsV2 returns keys in ascending order already.
	chain := make([][]byte, 0, len(listed.Contents))
	for _, obj := range listed.Contents {
		cert, err := s.get(ctx, aws.StringValue(obj.Key))
		if err != nil {
			return nil, err
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no certificates provisioned for %s", slot)
	}
	return chain, nil
}
