package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
)

// DynamoTables names the tables of a DynamoRegistry.
type DynamoTables struct {
	Wallets     string
	Keys        string
	Assets      string
	Collections string
	Rewards     string
	// OwnerIndex is the global secondary index of Assets keyed by owner_user_id.
	OwnerIndex string
}

// DefaultDynamoTables derives table names from prefix.
func DefaultDynamoTables(prefix string) DynamoTables {
	if prefix == "" {
		prefix = "custody"
	}
	return DynamoTables{
		Wallets:     prefix + "-wallets",
		Keys:        prefix + "-wallet-keys",
		Assets:      prefix + "-assets",
		Collections: prefix + "-collections",
		Rewards:     prefix + "-rewards",
		OwnerIndex:  "owner_user_id-index",
	}
}

// DynamoRegistry implements every registry on DynamoDB. Conditional creates
// use condition expressions, reward entries expire through the table TTL on
// expires_at.
type DynamoRegistry struct {
	client dynamodbiface.DynamoDBAPI
	tables DynamoTables
	log    *slog.Logger
}

func NewDynamoRegistry(client dynamodbiface.DynamoDBAPI, tables DynamoTables, log *slog.Logger) *DynamoRegistry {
	return &DynamoRegistry{client: client, tables: tables, log: log}
}

// NewDynamoRegistryFromConfig creates a registry using the default AWS
// credential chain.
func NewDynamoRegistryFromConfig(region, endpoint string, tables DynamoTables, log *slog.Logger) (*DynamoRegistry, error) {
	cfg := aws.Config{Region: aws.String(region)}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}
	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewDynamoRegistry(dynamodb.New(sess), tables, log), nil
}

func isConditionFailed(err error) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
}

func (r *DynamoRegistry) getItem(ctx context.Context, table, keyName, key string, out any) error {
	res, err := r.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]*dynamodb.AttributeValue{
			keyName: {S: aws.String(key)},
		},
	})
	if err != nil {
		r.log.Error("DynamoDB read failed", "err", err, slog.String("table", table))
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if len(res.Item) == 0 {
		return interfaces.ErrRecordNotFound
	}
	return dynamodbattribute.UnmarshalMap(res.Item, out)
}

func (r *DynamoRegistry) putItem(ctx context.Context, table string, value any, condition string, values map[string]*dynamodb.AttributeValue, names map[string]*string) error {
	item, err := dynamodbattribute.MarshalMap(value)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	input := &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	}
	if condition != "" {
		input.ConditionExpression = aws.String(condition)
		input.ExpressionAttributeValues = values
		input.ExpressionAttributeNames = names
	}
	if _, err := r.client.PutItemWithContext(ctx, input); err != nil {
		if isConditionFailed(err) {
			return interfaces.ErrConditionFailed
		}
		r.log.Error("DynamoDB write failed", "err", err, slog.String("table", table))
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

func (r *DynamoRegistry) deleteItem(ctx context.Context, table, keyName, key string) error {
	_, err := r.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key: map[string]*dynamodb.AttributeValue{
			keyName: {S: aws.String(key)},
		},
	})
	if err != nil {
		r.log.Error("DynamoDB delete failed", "err", err, slog.String("table", table))
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

func (r *DynamoRegistry) GetWallet(ctx context.Context, userID string) (*interfaces.WalletRecord, error) {
	var rec interfaces.WalletRecord
	if err := r.getItem(ctx, r.tables.Wallets, "user_id", userID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *DynamoRegistry) CreatePendingWallet(ctx context.Context, rec *interfaces.WalletRecord) error {
	return r.putItem(ctx, r.tables.Wallets, rec,
		"attribute_not_exists(user_id) OR #status = :failed",
		map[string]*dynamodb.AttributeValue{":failed": {S: aws.String(string(interfaces.WalletFailed))}},
		map[string]*string{"#status": aws.String("status")})
}

func (r *DynamoRegistry) PutWallet(ctx context.Context, rec *interfaces.WalletRecord) error {
	return r.putItem(ctx, r.tables.Wallets, rec, "", nil, nil)
}

func (r *DynamoRegistry) DeleteWallet(ctx context.Context, userID string) error {
	return r.deleteItem(ctx, r.tables.Wallets, "user_id", userID)
}

func (r *DynamoRegistry) GetKey(ctx context.Context, userID string) (*interfaces.KeyRecord, error) {
	var rec interfaces.KeyRecord
	if err := r.getItem(ctx, r.tables.Keys, "user_id", userID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *DynamoRegistry) CreateKey(ctx context.Context, rec *interfaces.KeyRecord) error {
	return r.putItem(ctx, r.tables.Keys, rec, "attribute_not_exists(user_id)", nil, nil)
}

func (r *DynamoRegistry) DeleteKey(ctx context.Context, userID string) error {
	return r.deleteItem(ctx, r.tables.Keys, "user_id", userID)
}

func (r *DynamoRegistry) CreateAsset(ctx context.Context, rec *interfaces.AssetRecord) error {
	return r.putItem(ctx, r.tables.Assets, rec, "attribute_not_exists(asset_id)", nil, nil)
}

func (r *DynamoRegistry) GetAsset(ctx context.Context, assetID string) (*interfaces.AssetRecord, error) {
	var rec interfaces.AssetRecord
	if err := r.getItem(ctx, r.tables.Assets, "asset_id", assetID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *DynamoRegistry) ListAssets(ctx context.Context, ownerUserID string) ([]*interfaces.AssetRecord, error) {
	var out []*interfaces.AssetRecord
	var unmarshalErr error
	err := r.client.QueryPagesWithContext(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tables.Assets),
		IndexName:              aws.String(r.tables.OwnerIndex),
		KeyConditionExpression: aws.String("owner_user_id = :owner"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":owner": {S: aws.String(ownerUserID)},
		},
	}, func(page *dynamodb.QueryOutput, lastPage bool) bool {
		var records []*interfaces.AssetRecord
		if err := dynamodbattribute.UnmarshalListOfMaps(page.Items, &records); err != nil {
			unmarshalErr = err
			return false
		}
		out = append(out, records...)
		return true
	})
	if err != nil {
		r.log.Error("DynamoDB query failed", "err", err, slog.String("table", r.tables.Assets))
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if unmarshalErr != nil {
		return nil, unmarshalErr
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *DynamoRegistry) GetCollection(ctx context.Context, userID string) (*interfaces.CollectionRecord, error) {
	var rec interfaces.CollectionRecord
	if err := r.getItem(ctx, r.tables.Collections, "user_id", userID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *DynamoRegistry) CreateCollection(ctx context.Context, rec *interfaces.CollectionRecord) error {
	return r.putItem(ctx, r.tables.Collections, rec, "attribute_not_exists(user_id)", nil, nil)
}

// AppendReward stores entry under (user_id, reward_id). Reward ids are
// time-ordered, so the sort key orders a user's history.
func (r *DynamoRegistry) AppendReward(ctx context.Context, entry *interfaces.RewardLedgerEntry) error {
	return r.putItem(ctx, r.tables.Rewards, entry, "attribute_not_exists(reward_id)", nil, nil)
}

func (r *DynamoRegistry) ListRewards(ctx context.Context, userID string, limit int) ([]*interfaces.RewardLedgerEntry, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tables.Rewards),
		KeyConditionExpression: aws.String("user_id = :user"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":user": {S: aws.String(userID)},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int64(int64(limit))
	}

	var out []*interfaces.RewardLedgerEntry
	var unmarshalErr error
	err := r.client.QueryPagesWithContext(ctx, input, func(page *dynamodb.QueryOutput, lastPage bool) bool {
		var entries []*interfaces.RewardLedgerEntry
		if err := dynamodbattribute.UnmarshalListOfMaps(page.Items, &entries); err != nil {
			unmarshalErr = err
			return false
		}
		out = append(out, entries...)
		return limit <= 0 || len(out) < limit
	})
	if err != nil {
		r.log.Error("DynamoDB query failed", "err", err, slog.String("table", r.tables.Rewards))
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if unmarshalErr != nil {
		return nil, unmarshalErr
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
