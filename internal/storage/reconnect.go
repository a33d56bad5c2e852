// Package storage backs the connectionRefresh message's optional
// newConnectionUrl (section 6): a presigned S3 URL the client fetches to
// obtain fresh reconnect parameters once a connection nears its maximum
// lifetime, rather than the gateway minting long-lived secrets itself.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ReconnectService issues presigned URLs for the per-connection reconnect
// object a small out-of-band process publishes under
// reconnect/{sessionId}/{connectionId}.
type ReconnectService struct {
	presignClient *s3.PresignClient
	bucketName    string
	expiry        time.Duration
}

func NewReconnectService(client *s3.Client, bucketName string, expiry time.Duration) *ReconnectService {
	return &ReconnectService{
		presignClient: s3.NewPresignClient(client),
		bucketName:    bucketName,
		expiry:        expiry,
	}
}

func reconnectKey(sessionID, connectionID string) string {
	return fmt.Sprintf("reconnect/%s/%s", sessionID, connectionID)
}

// PresignReconnectURL returns a time-limited GET URL for a connection's
// reconnect object.
func (s *ReconnectService) PresignReconnectURL(ctx context.Context, sessionID, connectionID string) (string, error) {
	out, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(reconnectKey(sessionID, connectionID)),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign reconnect url: %w", err)
	}
	return out.URL, nil
}
