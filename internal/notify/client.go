package notify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/ngmaloney/disaster-terminal/internal/awserr"
	"github.com/ngmaloney/disaster-terminal/internal/logging"
	"github.com/ngmaloney/disaster-terminal/internal/models"
)

// API is the subset of *sns.Client the notifier uses
type API interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	Subscribe(ctx context.Context, in *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error)
	Unsubscribe(ctx context.Context, in *sns.UnsubscribeInput, optFns ...func(*sns.Options)) (*sns.UnsubscribeOutput, error)
	ListTopics(ctx context.Context, in *sns.ListTopicsInput, optFns ...func(*sns.Options)) (*sns.ListTopicsOutput, error)
	GetTopicAttributes(ctx context.Context, in *sns.GetTopicAttributesInput, optFns ...func(*sns.Options)) (*sns.GetTopicAttributesOutput, error)
}

// Registry records subscriptions created through the client
type Registry interface {
	AddSubscription(ctx context.Context, sub models.Subscription) (int64, error)
	DeleteSubscription(ctx context.Context, arn string) error
}

// Config holds configuration for the notifier
type Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	TopicArn     string
}

// Status is the notifier's view of its connection
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// Notification is one message to publish
type Notification struct {
	Subject     string
	Message     string
	Attributes  map[string]string
	PhoneNumber string // direct SMS instead of the topic
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
)

// Client publishes alerts and manages subscriptions on one topic
type Client struct {
	api       API
	topicArn  string
	configErr error
	registry  Registry
	logger    logging.Logger

	mu      sync.Mutex
	status  Status
	lastErr string
}

// New creates a notifier. When configuration is incomplete the returned
// client is still usable but every call fails with the configuration error,
// which is also returned here.
func New(ctx context.Context, cfg Config, logger logging.Logger) (*Client, error) {
	c := &Client{topicArn: cfg.TopicArn, logger: logger, status: StatusDisconnected}

	var missing []string
	if cfg.AccessKey == "" {
		missing = append(missing, "AWS_ACCESS_KEY_ID")
	}
	if cfg.SecretKey == "" {
		missing = append(missing, "AWS_SECRET_ACCESS_KEY")
	}
	if cfg.TopicArn == "" {
		missing = append(missing, "SNS_TOPIC_ARN")
	}
	if cfg.Region == "" {
		missing = append(missing, "AWS_REGION")
	}
	if len(missing) > 0 {
		c.configErr = awserr.Configuration(awserr.ServiceSNS, "SNS configuration incomplete", missing...)
		c.lastErr = c.configErr.Error()
		logger.WithError(c.configErr).Warn("SNS notifier not configured")
		return c, c.configErr
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken)),
		config.WithRetryMaxAttempts(3),
	)
	if err != nil {
		c.configErr = fmt.Errorf("failed to load AWS config: %w", err)
		c.lastErr = c.configErr.Error()
		return c, c.configErr
	}
	c.api = sns.NewFromConfig(awsCfg)

	logger.WithFields(logging.Fields{
		"region": cfg.Region,
		"topic":  cfg.TopicArn,
	}).Info("SNS notifier initialized")
	return c, nil
}

// NewWithAPI creates a notifier over an existing client
func NewWithAPI(api API, topicArn string, logger logging.Logger) *Client {
	return &Client{api: api, topicArn: topicArn, logger: logger, status: StatusDisconnected}
}

// SetRegistry makes Subscribe and Unsubscribe keep reg up to date
func (c *Client) SetRegistry(reg Registry) { c.registry = reg }

// TopicArn returns the configured topic
func (c *Client) TopicArn() string { return c.topicArn }

// Status returns the last known connection status
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastError returns the message of the last failure, if any
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Publish sends n to the topic, or directly to n.PhoneNumber when set
func (c *Client) Publish(ctx context.Context, n Notification) (string, error) {
	if c.configErr != nil {
		return "", c.configErr
	}

	in := &sns.PublishInput{
		Message: aws.String(n.Message),
	}
	if n.PhoneNumber != "" {
		in.PhoneNumber = aws.String(n.PhoneNumber)
	} else {
		in.TopicArn = aws.String(c.topicArn)
		in.Subject = aws.String(truncateSubject(n.Subject))
	}
	if len(n.Attributes) > 0 {
		in.MessageAttributes = make(map[string]types.MessageAttributeValue, len(n.Attributes))
		for k, v := range n.Attributes {
			in.MessageAttributes[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}
	}

	out, err := c.api.Publish(ctx, in)
	if err != nil {
		return "", c.fail("Publish", err)
	}
	c.ok()

	id := aws.ToString(out.MessageId)
	c.logger.WithFields(logging.Fields{"message_id": id, "subject": n.Subject}).Info("Published notification")
	return id, nil
}

// PublishAlert formats and publishes one alert to the topic
func (c *Client) PublishAlert(ctx context.Context, a models.Alert) (string, error) {
	return c.Publish(ctx, FormatAlert(a))
}

// Subscribe adds an sms or email endpoint to the topic and returns the
// subscription ARN ("pending confirmation" for unconfirmed email).
func (c *Client) Subscribe(ctx context.Context, protocol models.SubscriptionProtocol, endpoint string) (string, error) {
	if c.configErr != nil {
		return "", c.configErr
	}
	endpoint = strings.TrimSpace(endpoint)
	if err := validateEndpoint(protocol, endpoint); err != nil {
		return "", err
	}

	out, err := c.api.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn:              aws.String(c.topicArn),
		Protocol:              aws.String(string(protocol)),
		Endpoint:              aws.String(endpoint),
		ReturnSubscriptionArn: true,
	})
	if err != nil {
		return "", c.fail("Subscribe", err)
	}
	c.ok()
	arn := aws.ToString(out.SubscriptionArn)

	if c.registry != nil {
		_, err := c.registry.AddSubscription(ctx, models.Subscription{
			Protocol:        protocol,
			Endpoint:        endpoint,
			SubscriptionArn: arn,
			TopicArn:        c.topicArn,
			CreatedAt:       time.Now(),
		})
		if err != nil {
			c.logger.WithError(err).Warn("Failed to record subscription")
		}
	}

	c.logger.WithFields(logging.Fields{"protocol": protocol, "subscription": arn}).Info("Subscribed endpoint")
	return arn, nil
}

// Unsubscribe removes a subscription by ARN
func (c *Client) Unsubscribe(ctx context.Context, arn string) error {
	if c.configErr != nil {
		return c.configErr
	}
	if arn == "" {
		return awserr.Configuration(awserr.ServiceSNS, "subscription ARN is required")
	}

	if _, err := c.api.Unsubscribe(ctx, &sns.UnsubscribeInput{SubscriptionArn: aws.String(arn)}); err != nil {
		return c.fail("Unsubscribe", err)
	}
	c.ok()

	if c.registry != nil {
		if err := c.registry.DeleteSubscription(ctx, arn); err != nil {
			c.logger.WithError(err).Warn("Failed to remove recorded subscription")
		}
	}
	return nil
}

// ValidateConnection lists topics and reads the configured topic's
// attributes, updating Status.
func (c *Client) ValidateConnection(ctx context.Context) error {
	if c.configErr != nil {
		c.setStatus(StatusDisconnected, c.configErr.Error())
		return c.configErr
	}
	if _, err := c.api.ListTopics(ctx, &sns.ListTopicsInput{}); err != nil {
		return c.fail("ListTopics", err)
	}
	if _, err := c.api.GetTopicAttributes(ctx, &sns.GetTopicAttributesInput{TopicArn: aws.String(c.topicArn)}); err != nil {
		return c.fail("GetTopicAttributes", err)
	}
	c.ok()
	return nil
}

func (c *Client) fail(op string, err error) error {
	ce := awserr.Classify(awserr.ServiceSNS, op, err)
	c.setStatus(StatusError, ce.Error()+". "+ce.Remediation())
	c.logger.WithError(err).WithField("op", op).Warn("SNS call failed")
	return ce
}

func (c *Client) ok() { c.setStatus(StatusConnected, "") }

func (c *Client) setStatus(s Status, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
	c.lastErr = msg
}

func validateEndpoint(protocol models.SubscriptionProtocol, endpoint string) error {
	switch protocol {
	case models.ProtocolEmail:
		if !emailPattern.MatchString(endpoint) {
			return awserr.Configuration(awserr.ServiceSNS, fmt.Sprintf("invalid email address %q", endpoint))
		}
	case models.ProtocolSMS:
		if !phonePattern.MatchString(endpoint) {
			return awserr.Configuration(awserr.ServiceSNS, fmt.Sprintf("invalid phone number %q, use E.164 format like +60123456789", endpoint))
		}
	default:
		return awserr.Configuration(awserr.ServiceSNS, fmt.Sprintf("unsupported protocol %q, use sms or email", protocol))
	}
	return nil
}

// SNS subjects are limited to 100 characters
func truncateSubject(s string) string {
	if len(s) <= 100 {
		return s
	}
	return s[:97] + "..."
}
