package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"lead-dashboard/internal/domain"
)

const (
	runPK       = "RUN"
	skPrefixRun = "RUN#"
	ttlDuration = 90 * 24 * time.Hour

	// skTimeLayout is fixed width so lexical order matches time order.
	skTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// dynamodbAPI is the minimal DynamoDB interface required by RunLedger.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// RunLedger records one item per sync run in a DynamoDB table keyed by PK/SK.
type RunLedger struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// NewRunLedger creates a RunLedger over the given table.
func NewRunLedger(api dynamodbAPI, tableName string) (*RunLedger, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &RunLedger{api: api, tableName: tableName, now: time.Now}, nil
}

// runSK orders runs chronologically by start time.
func runSK(startedAt time.Time) string {
	return skPrefixRun + startedAt.UTC().Format(skTimeLayout)
}

// SaveRun persists a finished sync run.
func (l *RunLedger) SaveRun(ctx context.Context, run domain.SyncRun) error {
	if run.ID == "" {
		return errors.New("repository: SaveRun: run id is required")
	}
	if run.StartedAt.IsZero() {
		return errors.New("repository: SaveRun: start time is required")
	}

	_, err := l.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.tableName),
		Item:      runItem(run, l.now().Add(ttlDuration).Unix()),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveRun: %w", err)
	}
	return nil
}

// LatestRun returns the most recently started run, or false when none exist.
func (l *RunLedger) LatestRun(ctx context.Context) (domain.SyncRun, bool, error) {
	out, err := l.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(l.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: runPK},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixRun},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return domain.SyncRun{}, false, fmt.Errorf("repository: LatestRun query: %w", err)
	}
	if out == nil || len(out.Items) == 0 {
		return domain.SyncRun{}, false, nil
	}

	run, err := itemToRun(out.Items[0])
	if err != nil {
		return domain.SyncRun{}, false, fmt.Errorf("repository: LatestRun unmarshal: %w", err)
	}
	return run, true, nil
}

func runItem(run domain.SyncRun, ttl int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: runPK},
		"SK":         &types.AttributeValueMemberS{Value: runSK(run.StartedAt)},
		"runId":      &types.AttributeValueMemberS{Value: run.ID},
		"startedAt":  &types.AttributeValueMemberS{Value: run.StartedAt.UTC().Format(time.RFC3339Nano)},
		"finishedAt": &types.AttributeValueMemberS{Value: run.FinishedAt.UTC().Format(time.RFC3339Nano)},
		"rows":       &types.AttributeValueMemberN{Value: strconv.Itoa(run.Rows)},
		"reanalyzed": &types.AttributeValueMemberN{Value: strconv.Itoa(run.Reanalyzed)},
		"carried":    &types.AttributeValueMemberN{Value: strconv.Itoa(run.Carried)},
		"failed":     &types.AttributeValueMemberN{Value: strconv.Itoa(run.Failed)},
		"ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
	}
}

func itemToRun(item map[string]types.AttributeValue) (domain.SyncRun, error) {
	id, err := strAttr(item, "runId")
	if err != nil {
		return domain.SyncRun{}, err
	}
	started, err := timeAttr(item, "startedAt")
	if err != nil {
		return domain.SyncRun{}, err
	}
	finished, err := timeAttr(item, "finishedAt")
	if err != nil {
		return domain.SyncRun{}, err
	}

	run := domain.SyncRun{ID: id, StartedAt: started, FinishedAt: finished}
	counters := []struct {
		name string
		dst  *int
	}{
		{"rows", &run.Rows},
		{"reanalyzed", &run.Reanalyzed},
		{"carried", &run.Carried},
		{"failed", &run.Failed},
	}
	for _, c := range counters {
		n, err := intAttr(item, c.name)
		if err != nil {
			return domain.SyncRun{}, err
		}
		*c.dst = n
	}
	return run, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return t, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
