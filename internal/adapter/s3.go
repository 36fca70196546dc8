package adapter

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/markb/cloudtune/internal/session"
)

// s3PresignExpiry bounds how long a minted stream URL stays valid. Long
// enough for a full album track, short enough that a leaked URL goes stale.
const s3PresignExpiry = 15 * time.Minute

// S3Adapter serves an S3 (or S3-compatible) bucket. Presigned GetObject
// URLs are fetchable by any client with no extra headers and honor Range,
// so resolve yields a redirect descriptor and no bytes pass through the
// server.
type S3Adapter struct {
	sessions *session.Registry[*s3Session]
}

type s3Session struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewS3 creates the S3 adapter.
func NewS3() *S3Adapter {
	return &S3Adapter{sessions: session.NewRegistry[*s3Session](string(KindS3))}
}

// Kind implements Adapter.
func (a *S3Adapter) Kind() Kind { return KindS3 }

// Connect builds a client from the supplied credentials and probes the
// bucket with HeadBucket.
func (a *S3Adapter) Connect(ctx context.Context, creds Credentials) (string, error) {
	if creds.Bucket == "" {
		return "", &Error{Op: "connect", Kind: KindS3, Err: fmt.Errorf("%w: bucket required", ErrAuth)}
	}

	var opts []func(*awsconfig.LoadOptions) error
	if creds.Region != "" {
		opts = append(opts, awsconfig.WithRegion(creds.Region))
	}
	if creds.AccessKeyID != "" && creds.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return "", &Error{Op: "connect", Kind: KindS3, Err: fmt.Errorf("%w: %v", ErrAuth, err)}
	}

	var s3Opts []func(*s3.Options)
	if creds.URL != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(creds.URL) })
	}
	if creds.PathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(creds.Bucket)}); err != nil {
		return "", &Error{Op: "connect", Kind: KindS3, Err: classifyS3Err(err)}
	}

	sess := &s3Session{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  creds.Bucket,
	}
	return a.sessions.Add(sess), nil
}

// classifyS3Err maps SDK errors onto the taxonomy.
func classifyS3Err(err error) error {
	var notFound *s3types.NotFound
	var noKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noKey) {
		return ErrNotFound
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "403") || strings.Contains(msg, "AccessDenied") || strings.Contains(msg, "InvalidAccessKeyId") || strings.Contains(msg, "SignatureDoesNotMatch"):
		return ErrAuth
	case strings.Contains(msg, "404") || strings.Contains(msg, "NotFound"):
		return ErrNotFound
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "connection refused") || strings.Contains(msg, "dial tcp"):
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	default:
		return &RemoteError{Message: msg}
	}
}

// s3Prefix normalizes a container ref into a ListObjectsV2 prefix.
func s3Prefix(ref string) string {
	p := strings.Trim(ref, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// List implements Adapter. Delimiter listing maps CommonPrefixes to
// directories and Contents to files; keys are the refs.
func (a *S3Adapter) List(ctx context.Context, sessionID, ref string) ([]Entry, error) {
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, &Error{Op: "list", Kind: KindS3, Err: ErrNotConnected}
	}

	prefix := s3Prefix(ref)
	var entries []Entry
	var continuation *string
	for {
		out, err := sess.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(sess.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, &Error{Op: "list", Kind: KindS3, Err: classifyS3Err(err)}
		}

		for _, cp := range out.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			key := strings.TrimSuffix(*cp.Prefix, "/")
			entries = append(entries, Entry{
				Name: path.Base(key),
				Ref:  key,
				Kind: EntryDirectory,
			})
		}
		for _, obj := range out.Contents {
			if obj.Key == nil || *obj.Key == prefix {
				continue // the folder marker object, not a listing row
			}
			name := path.Base(*obj.Key)
			var size int64
			if obj.Size != nil {
				size = *obj.Size
			}
			entries = append(entries, Entry{
				Name:            name,
				Ref:             *obj.Key,
				Kind:            EntryFile,
				SizeBytes:       size,
				IsPlayableAudio: IsPlayableAudio(name),
			})
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuation = out.NextContinuationToken
	}

	SortEntries(entries)
	return entries, nil
}

// Resolve implements Adapter: HeadObject for existence and size, then a
// presigned GetObject URL for the browser to fetch directly.
func (a *S3Adapter) Resolve(ctx context.Context, sessionID, ref string) (*StreamDescriptor, error) {
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, &Error{Op: "resolve", Kind: KindS3, Err: ErrNotConnected}
	}

	head, err := sess.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(sess.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return nil, &Error{Op: "resolve", Kind: KindS3, Err: classifyS3Err(err)}
	}

	signed, err := sess.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(sess.bucket),
		Key:    aws.String(ref),
	}, s3.WithPresignExpires(s3PresignExpiry))
	if err != nil {
		return nil, &Error{Op: "resolve", Kind: KindS3, Err: &RemoteError{Message: err.Error()}}
	}

	size := SizeUnknown
	if head.ContentLength != nil {
		size = *head.ContentLength
	}

	return &StreamDescriptor{
		Variant:   StreamRedirect,
		Name:      path.Base(ref),
		Size:      size,
		TargetURL: signed.URL,
	}, nil
}

// Disconnect implements Adapter.
func (a *S3Adapter) Disconnect(sessionID string) {
	a.sessions.Remove(sessionID)
}
