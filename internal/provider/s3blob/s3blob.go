// Package s3blob stores projects as JSON objects in an S3 compatible bucket.
// The object ETag is the version token and conditional writes detect
// conflicting uploads.
package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/openmined/cloudsync/internal/cloudsync"
)

const (
	ProviderName = "s3"

	objectExt   = ".json"
	metaName    = "name"
	contentType = "application/json"
)

type Config struct {
	Bucket    string `mapstructure:"bucket" json:"bucket"`
	Region    string `mapstructure:"region" json:"region"`
	Endpoint  string `mapstructure:"endpoint" json:"endpoint,omitempty"`
	AccessKey string `mapstructure:"access_key" json:"access_key,omitempty"`
	SecretKey string `mapstructure:"secret_key" json:"secret_key,omitempty"`
	Prefix    string `mapstructure:"prefix" json:"prefix,omitempty"`
}

func (c *Config) Enabled() bool {
	return c != nil && c.Bucket != ""
}

// ObjectAPI is the subset of the S3 client used by the provider
type ObjectAPI interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type objectBody struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Content   cloudsync.Text `json:"content"`
}

type Provider struct {
	api    ObjectAPI
	config *Config
}

// New builds a provider with a real S3 client. Static credentials are used
// when set, otherwise the default AWS credential chain.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			ForceAttemptHTTP2:   true,
		},
		Timeout: 30 * time.Second,
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithAPI(client, cfg), nil
}

func NewWithAPI(api ObjectAPI, cfg *Config) *Provider {
	return &Provider{api: api, config: cfg}
}

func (p *Provider) Name() string { return ProviderName }

// LoginCheck activates the provider when a bucket is configured. Credentials
// are checked lazily by the first request.
func (p *Provider) LoginCheck(_ context.Context, sess *cloudsync.Session) {
	if p.config.Enabled() {
		sess.SetProvider(p)
	}
}

// Login verifies bucket access with a single listing request.
func (p *Provider) Login(ctx context.Context, sess *cloudsync.Session) error {
	if !p.config.Enabled() {
		return errors.New("s3 bucket not configured")
	}
	_, err := p.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.config.Bucket),
		Prefix:  aws.String(p.prefix()),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return p.wrap("login", "", err)
	}
	sess.SetProvider(p)
	return nil
}

func (p *Provider) LoginCallback(ctx context.Context, sess *cloudsync.Session, _ url.Values) error {
	return p.Login(ctx, sess)
}

func (p *Provider) List(ctx context.Context) ([]*cloudsync.FileInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(p.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.config.Bucket),
		Prefix: aws.String(p.prefix()),
	})

	var out []*cloudsync.FileInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, p.wrap("list", "", err)
		}
		for _, obj := range page.Contents {
			id, ok := p.idFromKey(aws.ToString(obj.Key))
			if !ok {
				continue
			}
			out = append(out, &cloudsync.FileInfo{
				ID:        id,
				Name:      id,
				Version:   cleanETag(obj.ETag),
				UpdatedAt: aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

func (p *Provider) Download(ctx context.Context, id string) (*cloudsync.FileInfo, error) {
	resp, err := p.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.config.Bucket),
		Key:    aws.String(p.key(id)),
	})
	if err != nil {
		return nil, p.wrap("download", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, p.wrap("download", id, err)
	}
	var body objectBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}

	return &cloudsync.FileInfo{
		ID:        id,
		Name:      body.Name,
		Version:   cleanETag(resp.ETag),
		UpdatedAt: aws.ToTime(resp.LastModified),
		Content:   body.Content,
	}, nil
}

// Upload creates the object with If-None-Match or replaces it with If-Match
// on the base version. A failed precondition is reported as a conflict.
// Updates check the current ETag with HeadObject first, since some S3
// compatible stores ignore conditional headers on PutObject.
func (p *Provider) Upload(ctx context.Context, id string, baseVersion string, files cloudsync.Text) (*cloudsync.FileInfo, error) {
	create := id == ""
	if create {
		id = uuid.NewString()
	}

	name := ""
	if meta, err := cloudsync.DecodeHeader(files); err == nil {
		name = meta.Name
	}
	now := time.Now().UTC()
	data, err := json.Marshal(&objectBody{ID: id, Name: name, UpdatedAt: now, Content: files})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", id, err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(p.config.Bucket),
		Key:           aws.String(p.key(id)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		Metadata:      map[string]string{metaName: url.QueryEscape(name)},
	}
	if create {
		input.IfNoneMatch = aws.String("*")
	} else {
		current, err := p.currentVersion(ctx, id)
		if err != nil {
			return nil, err
		}
		if current != strings.Trim(baseVersion, "\"") {
			return nil, cloudsync.NewConflictError(id, baseVersion, current)
		}
		input.IfMatch = aws.String(quoteETag(baseVersion))
	}

	resp, err := p.api.PutObject(ctx, input)
	if err != nil {
		if isPreconditionFailed(err) {
			return nil, cloudsync.NewConflictError(id, baseVersion, "")
		}
		return nil, p.wrap("upload", id, err)
	}

	slog.Debug("s3 upload", "id", id, "size", len(data))
	return &cloudsync.FileInfo{ID: id, Name: name, Version: cleanETag(resp.ETag), UpdatedAt: now}, nil
}

// currentVersion returns the ETag of the stored object.
func (p *Provider) currentVersion(ctx context.Context, id string) (string, error) {
	head, err := p.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.config.Bucket),
		Key:    aws.String(p.key(id)),
	})
	if err != nil {
		return "", p.wrap("upload", id, err)
	}
	return cleanETag(head.ETag), nil
}

func (p *Provider) Delete(ctx context.Context, id string) error {
	_, err := p.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.config.Bucket),
		Key:    aws.String(p.key(id)),
	})
	if err != nil {
		return p.wrap("delete", id, err)
	}
	return nil
}

func (p *Provider) prefix() string {
	prefix := strings.Trim(p.config.Prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func (p *Provider) key(id string) string {
	return p.prefix() + id + objectExt
}

func (p *Provider) idFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, p.prefix())
	if !ok || path.Dir(rest) != "." || !strings.HasSuffix(rest, objectExt) {
		return "", false
	}
	return strings.TrimSuffix(rest, objectExt), true
}

func (p *Provider) wrap(op, id string, err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return cloudsync.NewNetworkError(op, http.StatusNotFound, fmt.Errorf("%s: %w", id, cloudsync.ErrNotFound))
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		if respErr.HTTPStatusCode() == http.StatusNotFound {
			return cloudsync.NewNetworkError(op, http.StatusNotFound, fmt.Errorf("%s: %w", id, cloudsync.ErrNotFound))
		}
		return cloudsync.NewNetworkError(op, respErr.HTTPStatusCode(), err)
	}
	return cloudsync.NewNetworkError(op, 0, err)
}

func isPreconditionFailed(err error) bool {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		// 409 is returned for a concurrent conditional write
		return code == http.StatusPreconditionFailed || code == http.StatusConflict
	}
	return false
}

func cleanETag(etag *string) string {
	return strings.Trim(aws.ToString(etag), "\"")
}

func quoteETag(etag string) string {
	return "\"" + strings.Trim(etag, "\"") + "\""
}

var _ cloudsync.Provider = (*Provider)(nil)
