// Package history keeps one DynamoDB item per pipeline run.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/lepinkainen/bookpipeline/internal/pipeline"
)

const (
	keyAttribute = "run_id"
	ttlAttribute = "expires_at"
)

// PutItemAPI is the part of the DynamoDB client the recorder uses
type PutItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Run is the stored form of one pipeline run
type Run struct {
	RunID                 string   `dynamodbav:"run_id"`
	FinishedAt            string   `dynamodbav:"finished_at"`
	StatusCode            int      `dynamodbav:"status_code"`
	Body                  string   `dynamodbav:"body"`
	Destination           string   `dynamodbav:"destination"`
	SourceURL             string   `dynamodbav:"source_url"`
	Works                 int      `dynamodbav:"works"`
	BooksUpserted         int      `dynamodbav:"books_upserted"`
	AuthorsUpserted       int      `dynamodbav:"authors_upserted"`
	AuthorlessWorks       int      `dynamodbav:"authorless_works"`
	FailedStages          []string `dynamodbav:"failed_stages,omitempty"`
	AverageBooksPerAuthor *float64 `dynamodbav:"average_books_per_author,omitempty"`
	DurationMS            int64    `dynamodbav:"duration_ms"`
}

// Recorder writes runs into a DynamoDB table keyed by run_id
type Recorder struct {
	client PutItemAPI
	table  string
	ttl    time.Duration
	now    func() time.Time
	newID  func() string
}

// NewRecorder builds a Recorder for table using the default AWS credential chain.
// Items expire after ttl when it is positive.
func NewRecorder(ctx context.Context, table string, ttl time.Duration) (*Recorder, error) {
	if table == "" {
		return nil, errors.New("history table name is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewRecorderWithClient(dynamodb.NewFromConfig(cfg), table, ttl), nil
}

// NewRecorderWithClient builds a Recorder around an existing client
func NewRecorderWithClient(client PutItemAPI, table string, ttl time.Duration) *Recorder {
	return &Recorder{
		client: client,
		table:  table,
		ttl:    ttl,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Record stores status as a new item and returns its run id
func (r *Recorder) Record(ctx context.Context, status pipeline.Status) (string, error) {
	now := r.now().UTC()
	run := Run{
		RunID:                 r.newID(),
		FinishedAt:            now.Format(time.RFC3339),
		StatusCode:            status.StatusCode,
		Body:                  status.Body,
		Destination:           status.Report.Destination,
		SourceURL:             status.Report.SourceURL,
		Works:                 status.Report.Works,
		BooksUpserted:         status.Report.BooksUpserted,
		AuthorsUpserted:       status.Report.AuthorsUpserted,
		AuthorlessWorks:       status.Report.AuthorlessWorks,
		FailedStages:          status.Report.FailedStages,
		AverageBooksPerAuthor: status.Report.AverageBooksPerAuthor,
		DurationMS:            status.Report.DurationMS,
	}

	item, err := attributevalue.MarshalMap(run)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run: %w", err)
	}
	if r.ttl > 0 {
		item[ttlAttribute] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Add(r.ttl).Unix())}
	}

	// run ids are never overwritten
	expr, err := expression.NewBuilder().
		WithCondition(expression.Name(keyAttribute).AttributeNotExists()).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build condition: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.table),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put run %s into %s: %w", run.RunID, r.table, err)
	}

	slog.Info("Recorded pipeline run", "table", r.table, "run_id", run.RunID)
	return run.RunID, nil
}
