package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTableSchema struct {
	hashKey string
	sortKey string
}

// fakeDynamo serves the subset of DynamoDB used by DynamoRegistry.
type fakeDynamo struct {
	dynamodbiface.DynamoDBAPI

	mu      sync.Mutex
	schemas map[string]fakeTableSchema
	tables  map[string]map[string]map[string]*dynamodb.AttributeValue
	failAll error
}

func newFakeDynamo() *fakeDynamo {
	t := DefaultDynamoTables("test")
	return &fakeDynamo{
		schemas: map[string]fakeTableSchema{
			t.Wallets:     {hashKey: "user_id"},
			t.Keys:        {hashKey: "user_id"},
			t.Assets:      {hashKey: "asset_id"},
			t.Collections: {hashKey: "user_id"},
			t.Rewards:     {hashKey: "user_id", sortKey: "reward_id"},
		},
		tables: make(map[string]map[string]map[string]*dynamodb.AttributeValue),
	}
}

func (f *fakeDynamo) primaryKey(table string, item map[string]*dynamodb.AttributeValue) string {
	schema := f.schemas[table]
	key := aws.StringValue(item[schema.hashKey].S)
	if schema.sortKey != "" {
		key += "\x00" + aws.StringValue(item[schema.sortKey].S)
	}
	return key
}

func (f *fakeDynamo) GetItemWithContext(_ aws.Context, in *dynamodb.GetItemInput, _ ...request.Option) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	table := aws.StringValue(in.TableName)
	return &dynamodb.GetItemOutput{Item: f.tables[table][f.primaryKey(table, in.Key)]}, nil
}

func (f *fakeDynamo) PutItemWithContext(_ aws.Context, in *dynamodb.PutItemInput, _ ...request.Option) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	table := aws.StringValue(in.TableName)
	if f.tables[table] == nil {
		f.tables[table] = make(map[string]map[string]*dynamodb.AttributeValue)
	}
	key := f.primaryKey(table, in.Item)

	if cond := aws.StringValue(in.ConditionExpression); cond != "" {
		if existing, ok := f.tables[table][key]; ok {
			allowed := false
			if strings.Contains(cond, "#status = :failed") {
				allowed = aws.StringValue(existing["status"].S) == aws.StringValue(in.ExpressionAttributeValues[":failed"].S)
			}
			if !allowed {
				return nil, awserr.New(dynamodb.ErrCodeConditionalCheckFailedException, "The conditional request failed", nil)
			}
		}
	}
	f.tables[table][key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItemWithContext(_ aws.Context, in *dynamodb.DeleteItemInput, _ ...request.Option) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := aws.StringValue(in.TableName)
	delete(f.tables[table], f.primaryKey(table, in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) QueryPagesWithContext(_ aws.Context, in *dynamodb.QueryInput, fn func(*dynamodb.QueryOutput, bool) bool, _ ...request.Option) error {
	f.mu.Lock()
	if f.failAll != nil {
		f.mu.Unlock()
		return f.failAll
	}
	table := aws.StringValue(in.TableName)
	attr, placeholder, _ := strings.Cut(aws.StringValue(in.KeyConditionExpression), " = ")
	want := aws.StringValue(in.ExpressionAttributeValues[placeholder].S)

	var items []map[string]*dynamodb.AttributeValue
	for _, item := range f.tables[table] {
		if v, ok := item[attr]; ok && aws.StringValue(v.S) == want {
			items = append(items, item)
		}
	}
	f.mu.Unlock()

	if sortKey := f.schemas[table].sortKey; sortKey != "" {
		forward := in.ScanIndexForward == nil || *in.ScanIndexForward
		sort.Slice(items, func(i, j int) bool {
			a, b := aws.StringValue(items[i][sortKey].S), aws.StringValue(items[j][sortKey].S)
			if forward {
				return a < b
			}
			return a > b
		})
	}
	if in.Limit != nil && int64(len(items)) > *in.Limit {
		items = items[:*in.Limit]
	}
	fn(&dynamodb.QueryOutput{Items: items}, true)
	return nil
}

func TestDynamoRegistry_BackendFailure(t *testing.T) {
	fake := newFakeDynamo()
	fake.failAll = errors.New("RequestError: send request failed")
	r := NewDynamoRegistry(fake, DefaultDynamoTables("test"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	_, err := r.GetWallet(ctx, "user-1")
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)

	err = r.CreatePendingWallet(ctx, &interfaces.WalletRecord{UserID: "user-1"})
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)

	_, err = r.ListRewards(ctx, "user-1", 0)
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
}

func TestDynamoRegistry_RewardExpiryIsUnixTime(t *testing.T) {
	fake := newFakeDynamo()
	tables := DefaultDynamoTables("test")
	r := NewDynamoRegistry(fake, tables, slog.New(slog.NewTextHandler(io.Discard, nil)))

	entry := &interfaces.RewardLedgerEntry{RewardID: "r-1", UserID: "user-1", EventType: "DAILY_LOGIN", Amount: "1"}
	entry.ExpiresAt = entry.ExpiresAt.AddDate(2030, 0, 0)
	require.NoError(t, r.AppendReward(context.Background(), entry))

	item := fake.tables[tables.Rewards]["user-1\x00r-1"]
	require.NotNil(t, item)
	require.NotNil(t, item["expires_at"].N, "TTL attribute must be numeric")
	assert.Nil(t, item["expires_at"].S)
}
