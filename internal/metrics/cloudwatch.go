package metrics

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	namespace                = "CreatorPulse/API"
	httpStatusServerError    = 500
	cloudwatchTimeoutSeconds = 5
)

// Client wraps CloudWatch client for custom metrics
type Client struct {
	client      *cloudwatch.Client
	enabled     bool
	environment string
}

// NewClient creates a new CloudWatch metrics client
func NewClient(ctx context.Context, environment string) (*Client, error) {
	// Only enable in production
	if environment != "production" {
		log.Printf("CloudWatch metrics disabled (environment: %s)", environment)
		return &Client{
			enabled:     false,
			environment: environment,
		}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Printf("Failed to load AWS config for CloudWatch: %v", err)
		return &Client{enabled: false}, nil
	}

	client := cloudwatch.NewFromConfig(cfg)
	log.Printf("CloudWatch metrics enabled (namespace: %s)", namespace)

	return &Client{
		client:      client,
		enabled:     true,
		environment: environment,
	}, nil
}

// RecordAPIRequest records an API request metric
func (m *Client) RecordAPIRequest(endpoint string, statusCode int, duration time.Duration) {
	if !m.enabled {
		return
	}

	go func() {
		ctx := context.Background()
		metricName := "APIRequests"
		if statusCode >= httpStatusServerError {
			metricName = "APIErrors"
		}

		dimensions := []types.Dimension{
			{
				Name:  aws.String("Endpoint"),
				Value: aws.String(endpoint),
			},
			{
				Name:  aws.String("Environment"),
				Value: aws.String(m.environment),
			},
		}

		if err := m.putMetric(ctx, metricName, 1, types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record %s metric: %v", metricName, err)
		}

		latencyMs := float64(duration.Milliseconds())
		if err := m.putMetric(ctx, "APILatency", latencyMs, types.StandardUnitMilliseconds, dimensions); err != nil {
			log.Printf("Failed to record APILatency metric: %v", err)
		}
	}()
}

// RecordTokenUsage records LLM token usage per model
func (m *Client) RecordTokenUsage(model string, totalTokens, promptTokens, completionTokens int) {
	if !m.enabled {
		return
	}

	go func() {
		ctx := context.Background()
		dimensions := []types.Dimension{
			{
				Name:  aws.String("Model"),
				Value: aws.String(model),
			},
			{
				Name:  aws.String("Environment"),
				Value: aws.String(m.environment),
			},
		}

		if err := m.putMetric(ctx, "LLMTokens/Total", float64(totalTokens), types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record LLMTokens/Total metric: %v", err)
		}
		if err := m.putMetric(ctx, "LLMTokens/Prompt", float64(promptTokens), types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record LLMTokens/Prompt metric: %v", err)
		}
		if err := m.putMetric(ctx, "LLMTokens/Completion", float64(completionTokens), types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record LLMTokens/Completion metric: %v", err)
		}
	}()
}

// RecordCrawlBatch records one completed per-user batch crawl
func (m *Client) RecordCrawlBatch(itemsFetched, itemsNew, errors int, duration time.Duration) {
	if !m.enabled {
		return
	}

	go func() {
		ctx := context.Background()
		dimensions := []types.Dimension{
			{
				Name:  aws.String("Environment"),
				Value: aws.String(m.environment),
			},
		}

		if err := m.putMetric(ctx, "CrawlItemsFetched", float64(itemsFetched), types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record CrawlItemsFetched metric: %v", err)
		}
		if err := m.putMetric(ctx, "CrawlItemsNew", float64(itemsNew), types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record CrawlItemsNew metric: %v", err)
		}
		if errors > 0 {
			if err := m.putMetric(ctx, "CrawlSourceErrors", float64(errors), types.StandardUnitCount, dimensions); err != nil {
				log.Printf("Failed to record CrawlSourceErrors metric: %v", err)
			}
		}
		durationMs := float64(duration.Milliseconds())
		if err := m.putMetric(ctx, "CrawlBatchDuration", durationMs, types.StandardUnitMilliseconds, dimensions); err != nil {
			log.Printf("Failed to record CrawlBatchDuration metric: %v", err)
		}
	}()
}

// RecordEmailSend records newsletter delivery outcomes
func (m *Client) RecordEmailSend(sent, failed, queued int) {
	if !m.enabled {
		return
	}

	go func() {
		ctx := context.Background()
		dimensions := []types.Dimension{
			{
				Name:  aws.String("Environment"),
				Value: aws.String(m.environment),
			},
		}

		if err := m.putMetric(ctx, "EmailsSent", float64(sent), types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record EmailsSent metric: %v", err)
		}
		if failed > 0 {
			if err := m.putMetric(ctx, "EmailsFailed", float64(failed), types.StandardUnitCount, dimensions); err != nil {
				log.Printf("Failed to record EmailsFailed metric: %v", err)
			}
		}
		if queued > 0 {
			if err := m.putMetric(ctx, "EmailsQueued", float64(queued), types.StandardUnitCount, dimensions); err != nil {
				log.Printf("Failed to record EmailsQueued metric: %v", err)
			}
		}
	}()
}

// RecordGenerationDuration records draft generation duration
func (m *Client) RecordGenerationDuration(duration time.Duration, success bool) {
	if !m.enabled {
		return
	}

	go func() {
		ctx := context.Background()
		dimensions := []types.Dimension{
			{
				Name:  aws.String("Success"),
				Value: aws.String(boolToString(success)),
			},
			{
				Name:  aws.String("Environment"),
				Value: aws.String(m.environment),
			},
		}

		durationMs := float64(duration.Milliseconds())
		if err := m.putMetric(ctx, "GenerationDuration", durationMs, types.StandardUnitMilliseconds, dimensions); err != nil {
			log.Printf("Failed to record GenerationDuration metric: %v", err)
		}
	}()
}

// putMetric sends a metric to CloudWatch
func (m *Client) putMetric(
	_ context.Context,
	metricName string,
	value float64,
	unit types.StandardUnit,
	dimensions []types.Dimension,
) error {
	if !m.enabled || m.client == nil {
		return nil
	}

	timeout := time.Duration(cloudwatchTimeoutSeconds) * time.Second
	cwCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err := m.client.PutMetricData(cwCtx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(metricName),
				Value:      aws.Float64(value),
				Unit:       unit,
				Timestamp:  aws.Time(time.Now()),
				Dimensions: dimensions,
			},
		},
	})

	return err
}

func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
