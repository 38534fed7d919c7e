package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/storyforge/shield/internal/retry"
)

// MetricsSink records a metric observation with dimensions.
type MetricsSink interface {
	PutMetric(ctx context.Context, namespace, name string, dimensions map[string]string, value float64, timestamp time.Time) error
}

// NotificationSink publishes an alert message to a topic.
type NotificationSink interface {
	Publish(ctx context.Context, topic, message, subject string) error
}

// CloudWatchAPI defines the metrics provider operations used here.
// This allows for mocking in tests.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// SNSAPI defines the notification provider operations used here.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// CloudWatchSink implements MetricsSink against CloudWatch.
type CloudWatchSink struct {
	client CloudWatchAPI
	retry  retry.Policy
}

// NewCloudWatchSink creates a CloudWatch metrics sink. Pass a nil
// client to connect with the ambient AWS configuration.
func NewCloudWatchSink(client CloudWatchAPI, region string) (*CloudWatchSink, error) {
	if client == nil {
		cfg, err := loadAWSConfig(region)
		if err != nil {
			return nil, err
		}
		client = cloudwatch.NewFromConfig(cfg)
	}
	return &CloudWatchSink{client: client, retry: retry.DefaultPolicy()}, nil
}

// PutMetric records one observation.
func (s *CloudWatchSink) PutMetric(ctx context.Context, namespace, name string, dimensions map[string]string, value float64, timestamp time.Time) error {
	dims := make([]cwtypes.Dimension, 0, len(dimensions))
	for k, v := range dimensions {
		dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(v)})
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(name),
				Dimensions: dims,
				Value:      aws.Float64(value),
				Timestamp:  aws.Time(timestamp),
			},
		},
	}

	return retry.Do(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.client.PutMetricData(ctx, input)
		return err
	})
}

// SNSSink implements NotificationSink against SNS.
type SNSSink struct {
	client SNSAPI
	retry  retry.Policy
}

// NewSNSSink creates an SNS notification sink. Pass a nil client to
// connect with the ambient AWS configuration.
func NewSNSSink(client SNSAPI, region string) (*SNSSink, error) {
	if client == nil {
		cfg, err := loadAWSConfig(region)
		if err != nil {
			return nil, err
		}
		client = sns.NewFromConfig(cfg)
	}
	return &SNSSink{client: client, retry: retry.DefaultPolicy()}, nil
}

// Publish sends one alert message.
func (s *SNSSink) Publish(ctx context.Context, topic, message, subject string) error {
	input := &sns.PublishInput{
		TopicArn: aws.String(topic),
		Message:  aws.String(message),
		Subject:  aws.String(subject),
	}
	return retry.Do(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.client.Publish(ctx, input)
		return err
	})
}

func loadAWSConfig(region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	return awsconfig.LoadDefaultConfig(context.Background(), opts...)
}

// MemoryMetricsSink records metrics in memory for tests and local runs.
type MemoryMetricsSink struct {
	mu      sync.Mutex
	Metrics []RecordedMetric
}

// RecordedMetric is one captured observation.
type RecordedMetric struct {
	Namespace  string
	Name       string
	Dimensions map[string]string
	Value      float64
}

// NewMemoryMetricsSink creates an empty in-memory sink.
func NewMemoryMetricsSink() *MemoryMetricsSink {
	return &MemoryMetricsSink{}
}

// PutMetric captures the observation.
func (s *MemoryMetricsSink) PutMetric(ctx context.Context, namespace, name string, dimensions map[string]string, value float64, timestamp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metrics = append(s.Metrics, RecordedMetric{Namespace: namespace, Name: name, Dimensions: dimensions, Value: value})
	return nil
}

// Recorded returns a snapshot of captured metrics.
func (s *MemoryMetricsSink) Recorded() []RecordedMetric {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedMetric, len(s.Metrics))
	copy(out, s.Metrics)
	return out
}

// MemoryNotificationSink records published alerts in memory.
type MemoryNotificationSink struct {
	mu       sync.Mutex
	Messages []RecordedNotification
}

// RecordedNotification is one captured alert.
type RecordedNotification struct {
	Topic   string
	Message string
	Subject string
}

// NewMemoryNotificationSink creates an empty in-memory sink.
func NewMemoryNotificationSink() *MemoryNotificationSink {
	return &MemoryNotificationSink{}
}

// Publish captures the alert.
func (s *MemoryNotificationSink) Publish(ctx context.Context, topic, message, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, RecordedNotification{Topic: topic, Message: message, Subject: subject})
	return nil
}

// Published returns a snapshot of captured alerts.
func (s *MemoryNotificationSink) Published() []RecordedNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedNotification, len(s.Messages))
	copy(out, s.Messages)
	return out
}
