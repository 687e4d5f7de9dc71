package models

import "time"

// ConnectionStatus is the result of one connection probe against the bucket
type ConnectionStatus struct {
	Connected         bool   `json:"connected"`
	BucketExists      bool   `json:"bucket_exists"`
	HasReadPermission bool   `json:"has_read_permission"`
	CredentialsValid  bool   `json:"credentials_valid"`
	CORSIssue         bool   `json:"cors_issue"`
	Error             string `json:"error,omitempty"`

	Bucket      string    `json:"bucket"`
	Region      string    `json:"region"`
	ObjectCount int       `json:"object_count"`
	CheckedAt   time.Time `json:"checked_at"`
}

// Summary returns a one-line description for status bars
func (c ConnectionStatus) Summary() string {
	switch {
	case c.Connected:
		return "connected"
	case c.CORSIssue:
		return "network/CORS issue"
	case !c.CredentialsValid && !c.BucketExists:
		return "credentials problem"
	case !c.BucketExists:
		return "bucket unavailable"
	case !c.HasReadPermission:
		return "no read permission"
	default:
		return "disconnected"
	}
}

// SubscriptionProtocol is a delivery channel for notifications
type SubscriptionProtocol string

const (
	ProtocolSMS   SubscriptionProtocol = "sms"
	ProtocolEmail SubscriptionProtocol = "email"
)

// Subscription is a notification subscription created through this app
type Subscription struct {
	ID              int64                `json:"id"`
	Protocol        SubscriptionProtocol `json:"protocol"`
	Endpoint        string               `json:"endpoint"`
	SubscriptionArn string               `json:"subscription_arn"`
	TopicArn        string               `json:"topic_arn"`
	CreatedAt       time.Time            `json:"created_at"`
}
