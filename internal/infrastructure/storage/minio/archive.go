package minio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

const xmlContentType = "application/xml"

// DocumentArchive stores one object per generated document version.
type DocumentArchive struct {
	client *Client
}

func NewDocumentArchive(c *Client) *DocumentArchive {
	return &DocumentArchive{client: c}
}

// ObjectKey is submissions/<year>/<form>/<id>/v<version>.xml.
func ObjectKey(sub *submission.Submission) string {
	return fmt.Sprintf("submissions/%d/%s/%s/v%d.xml",
		sub.TaxYear, strings.ToLower(sub.FormType), sub.ID, sub.Version)
}

// Put uploads xml and returns its s3:// location.
func (a *DocumentArchive) Put(ctx context.Context, sub *submission.Submission, xml string) (string, error) {
	if sub == nil || xml == "" {
		return "", errors.InvalidParam("submission and document are required")
	}
	key := ObjectKey(sub)
	sum := sha256.Sum256([]byte(xml))

	info, err := a.client.api.PutObject(ctx, a.client.bucket, key, strings.NewReader(xml), int64(len(xml)),
		minio.PutObjectOptions{
			ContentType: xmlContentType,
			UserMetadata: map[string]string{
				"submission-id": sub.ID,
				"sha256":        hex.EncodeToString(sum[:]),
			},
			UserTags: map[string]string{
				"form-type":    sub.FormType,
				"tax-year":     fmt.Sprintf("%d", sub.TaxYear),
				"jurisdiction": sub.Jurisdiction,
			},
		})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeDocumentArchiveFailed, "failed to archive document").WithDetail(key)
	}
	a.client.logger.Debug("Document archived",
		logging.SubmissionID(sub.ID),
		logging.String("key", key),
		logging.String("etag", info.ETag))
	return fmt.Sprintf("s3://%s/%s", a.client.bucket, key), nil
}

// Get reads an archived document back.
func (a *DocumentArchive) Get(ctx context.Context, key string) (string, error) {
	obj, err := a.client.api.GetObject(ctx, a.client.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", a.mapReadError(err, key)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return "", a.mapReadError(err, key)
	}
	return string(data), nil
}

// Exists reports whether key is archived.
func (a *DocumentArchive) Exists(ctx context.Context, key string) (bool, error) {
	_, err := a.client.api.StatObject(ctx, a.client.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, errors.Wrap(err, errors.ErrCodeExternalService, "failed to stat document").WithDetail(key)
}

// PresignedURL returns a time-limited download link.
func (a *DocumentArchive) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-type", xmlContentType)
	u, err := a.client.api.PresignedGetObject(ctx, a.client.bucket, key, expiry, params)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeExternalService, "failed to presign document url").WithDetail(key)
	}
	return u.String(), nil
}

func (a *DocumentArchive) mapReadError(err error, key string) error {
	if isNoSuchKey(err) {
		return errors.NotFound("archived document not found").WithDetail(key)
	}
	return errors.Wrap(err, errors.ErrCodeExternalService, "failed to read document").WithDetail(key)
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
