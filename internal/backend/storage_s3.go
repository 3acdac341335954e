package backend

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	apperr "github.com/dvcrn/notebook-gateway/internal/errors"
)

// s3Storage uses the S3-compatible storage endpoint. The user credential
// travels as the session token so row-level policies still apply.
type s3Storage struct {
	client *s3.Client
	bucket string
}

func newS3Storage(cfg Config, token string, httpClient s3.HTTPClient) *s3Storage {
	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}
	client := s3.New(s3.Options{
		Region:       region,
		BaseEndpoint: aws.String(cfg.S3Endpoint),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.ProjectRef, cfg.AnonKey, token),
		HTTPClient:   httpClient,
	})
	return &s3Storage{client: client, bucket: cfg.Bucket}
}

func (s *s3Storage) Upload(ctx context.Context, obj Object) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(strings.TrimLeft(obj.Path, "/")),
		Body:          bytes.NewReader(obj.Data),
		ContentLength: aws.Int64(int64(len(obj.Data))),
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return classifyS3("storage.upload", err, obj.ContentType)
	}
	return nil
}

func (s *s3Storage) Remove(ctx context.Context, paths []string) error {
	ids := make([]types.ObjectIdentifier, 0, len(paths))
	for _, p := range paths {
		ids = append(ids, types.ObjectIdentifier{Key: aws.String(strings.TrimLeft(p, "/"))})
	}
	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return classifyS3("storage.remove", err, "")
	}
	for _, e := range out.Errors {
		code := aws.ToString(e.Code)
		if code == "NoSuchKey" {
			continue
		}
		return classifyS3Code("storage.remove", 0, code, aws.ToString(e.Message), "")
	}
	return nil
}

// classifyS3 maps an SDK error to a tagged error. contentType names the
// object being written, for rejections that do not repeat it.
func classifyS3(op string, err error, contentType string) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return apperr.Wrap(apperr.KindRemote, op, err)
	}
	status := 0
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}
	return classifyS3Code(op, status, apiErr.ErrorCode(), apiErr.ErrorMessage(), contentType)
}

func classifyS3Code(op string, status int, code, message, contentType string) error {
	switch code {
	case "ExpiredToken", "InvalidToken", "InvalidAccessKeyId", "TokenRefreshRequired":
		return &apperr.Error{Kind: apperr.KindAuthExpired, Op: op, Status: status, Detail: code + ": " + message}
	case "EntityTooLarge":
		return &apperr.Error{Kind: apperr.KindQuotaExceeded, Op: op, Status: status, Detail: message}
	case "InvalidMimeType":
		mimeType := mimeInMessage(message)
		if mimeType == "" {
			mimeType = contentType
		}
		rejected := apperr.UnsupportedContentType(op, mimeType)
		rejected.Status = status
		return rejected
	case "NoSuchKey", "NoSuchBucket":
		return &apperr.Error{Kind: apperr.KindNotFound, Op: op, Status: status, Detail: message}
	}
	// AccessDenied covers both policy rejections and bad credentials; the
	// message tells them apart.
	if code == "AccessDenied" && !containsAny(strings.ToLower(message), policyMarkers) {
		return &apperr.Error{Kind: apperr.KindAuthExpired, Op: op, Status: status, Detail: code + ": " + message}
	}
	return Classify(op, status, message)
}
