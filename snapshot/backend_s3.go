/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Backend stores the dump as an object, mirroring the teacher's
// storage/persistence-s3.go S3Storage: S3 has no append and no rename, so
// WriteTemp buffers the whole object in memory and PutObjects it on Close,
// and Commit does a server-side CopyObject onto the final key followed by
// a DeleteObject of the temp key.
type S3Backend struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	Bucket          string
	Key             string // final object key, e.g. "dump.nrdb"
	ForcePathStyle  bool

	mu     sync.Mutex
	client *s3.Client
}

func (b *S3Backend) tmpKey() string { return b.Key + ".tmp" }

func (b *S3Backend) ensureOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return nil
	}
	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if b.Region != "" {
		opts = append(opts, config.WithRegion(b.Region))
	}
	if b.AccessKeyID != "" && b.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(b.AccessKeyID, b.SecretAccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("snapshot: failed to load AWS config: %w", err)
	}
	var s3Opts []func(*s3.Options)
	if b.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(b.Endpoint) })
	}
	if b.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	b.client = s3.NewFromConfig(cfg, s3Opts...)
	return nil
}

type s3WriteCloser struct {
	b      *S3Backend
	key    string
	buf    bytes.Buffer
	closed bool
}

func (w *s3WriteCloser) Write(p []byte) (int, error) {
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

func (w *s3WriteCloser) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := w.b.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(w.b.Bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	return err
}

func (b *S3Backend) WriteTemp() (io.WriteCloser, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	return &s3WriteCloser{b: b, key: b.tmpKey()}, nil
}

func (b *S3Backend) Commit() error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	ctx := context.Background()
	source := b.Bucket + "/" + b.tmpKey()
	if _, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.Bucket),
		Key:        aws.String(b.Key),
		CopySource: aws.String(source),
	}); err != nil {
		return fmt.Errorf("snapshot: s3 commit copy failed: %w", err)
	}
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.tmpKey()),
	})
	return err
}

func (b *S3Backend) Abort() error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	_, err := b.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.tmpKey()),
	})
	return err
}

func (b *S3Backend) OpenCurrent() (io.ReadCloser, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	resp, err := b.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.Key),
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
