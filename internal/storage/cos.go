package storage

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tencentyun/cos-go-sdk-v5"

	apperrors "github.com/callpath-core/pkg/errors"
)

// COSOptions addresses a Tencent Cloud COS bucket.
type COSOptions struct {
	Bucket    string
	Region    string
	SecretID  string
	SecretKey string
	Domain    string // default myqcloud.com
	Scheme    string // default https
}

// COS is a Store backed by a COS bucket.
type COS struct {
	client *cos.Client
	base   string
}

const profileContentType = "application/octet-stream"

// NewCOS builds a client for opts. No request is made.
func NewCOS(opts COSOptions) (*COS, error) {
	if opts.Bucket == "" || opts.Region == "" {
		return nil, apperrors.New(apperrors.CodeConfigError, "cos: bucket and region are required")
	}
	if opts.SecretID == "" || opts.SecretKey == "" {
		return nil, apperrors.New(apperrors.CodeConfigError, "cos: credentials are required")
	}
	domain := cmp.Or(opts.Domain, "myqcloud.com")
	scheme := cmp.Or(opts.Scheme, "https")

	base := fmt.Sprintf("%s://%s.cos.%s.%s", scheme, opts.Bucket, opts.Region, domain)
	bucketURL, err := url.Parse(base)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "cos: bad bucket url", err)
	}
	serviceURL, err := url.Parse(fmt.Sprintf("%s://cos.%s.%s", scheme, opts.Region, domain))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "cos: bad service url", err)
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: bucketURL, ServiceURL: serviceURL}, &http.Client{
		Transport: &cos.AuthorizationTransport{SecretID: opts.SecretID, SecretKey: opts.SecretKey},
	})
	return &COS{client: client, base: base}, nil
}

func (c *COS) Put(ctx context.Context, key string, r io.Reader) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	opt := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{ContentType: profileContentType},
	}
	if _, err := c.client.Object.Put(ctx, k, r, opt); err != nil {
		return c.error(err, "put", key)
	}
	return nil
}

func (c *COS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Object.Get(ctx, k, nil)
	if err != nil {
		return nil, c.error(err, "get", key)
	}
	return resp.Body, nil
}

func (c *COS) Stat(ctx context.Context, key string) (Object, error) {
	k, err := CleanKey(key)
	if err != nil {
		return Object{}, err
	}
	resp, err := c.client.Object.Head(ctx, k, nil)
	if err != nil {
		return Object{}, c.error(err, "stat", key)
	}
	obj := Object{Key: k, Size: resp.ContentLength}
	if t, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		obj.Modified = t
	}
	return obj, nil
}

// List pages through the bucket listing under prefix.
func (c *COS) List(ctx context.Context, prefix string) ([]Object, error) {
	prefix, err := cleanPrefix(prefix)
	if err != nil {
		return nil, err
	}
	var out []Object
	opt := &cos.BucketGetOptions{Prefix: prefix, MaxKeys: 1000}
	for {
		res, _, err := c.client.Bucket.Get(ctx, opt)
		if err != nil {
			return nil, c.error(err, "list", prefix)
		}
		for _, o := range res.Contents {
			obj := Object{Key: o.Key, Size: o.Size}
			if t, err := time.Parse(time.RFC3339, o.LastModified); err == nil {
				obj.Modified = t
			}
			out = append(out, obj)
		}
		if !res.IsTruncated {
			return out, nil
		}
		opt.Marker = res.NextMarker
	}
}

func (c *COS) Remove(ctx context.Context, key string) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	if _, err := c.client.Object.Delete(ctx, k, nil); err != nil && !cos.IsNotFoundError(err) {
		return c.error(err, "remove", key)
	}
	return nil
}

func (c *COS) URL(key string) string {
	return c.base + "/" + key
}

func (c *COS) error(err error, op, key string) error {
	if cos.IsNotFoundError(err) {
		return apperrors.Newf(apperrors.CodeNotFound, "cos: %s %s: no such object", op, key)
	}
	return apperrors.Wrapf(err, apperrors.CodeStorageError, "cos: %s %s", op, key)
}
