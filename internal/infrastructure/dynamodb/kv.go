package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	awsv2dynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsv2types "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	awsv2xray "github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/google/uuid"
)

// DefaultChunkSize keeps every item well under the 400 KB DynamoDB item limit.
const DefaultChunkSize = 350 * 1024

const readAttempts = 3

// ErrTornRead is returned when a blob kept changing while its chunks were read.
var ErrTornRead = errors.New("dynamodb kv: blob changed during read")

// API is the subset of the DynamoDB client the store needs.
type API interface {
	GetItem(ctx context.Context, in *awsv2dynamodb.GetItemInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *awsv2dynamodb.PutItemInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *awsv2dynamodb.DeleteItemInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.DeleteItemOutput, error)
}

// Client stores each key as one manifest item. Values up to chunkSize live
// inline in the manifest; larger ones are split into chunk items written
// under a fresh version before the manifest is switched to it.
type Client struct {
	db         API
	tableName  string
	namespace  string
	chunkSize  int
	newVersion func() string
}

func NewClient(ctx context.Context, region, tableName, namespace string) (*Client, error) {
	if region == "" || tableName == "" {
		return nil, errors.New("dynamodb kv: region and table name are required")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	awsv2xray.AWSV2Instrumentor(&cfg.APIOptions)
	return NewClientWithAPI(awsv2dynamodb.NewFromConfig(cfg), tableName, namespace), nil
}

func NewClientWithAPI(api API, tableName, namespace string) *Client {
	if namespace == "" {
		namespace = "filetrack"
	}
	return &Client{
		db:         api,
		tableName:  tableName,
		namespace:  namespace,
		chunkSize:  DefaultChunkSize,
		newVersion: uuid.NewString,
	}
}

func kvPK(namespace string) string { return "KV#" + namespace }

func chunkSK(key, version string, i int) string {
	return key + "#" + version + "#" + strconv.Itoa(i)
}

type item struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	Value      string `dynamodbav:"Value,omitempty"`
	Version    string `dynamodbav:"Version,omitempty"`
	Chunks     int    `dynamodbav:"Chunks,omitempty"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
}

type chunk struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	Data       []byte `dynamodbav:"Data"`
}

func (c *Client) keyAttrs(sk string) map[string]awsv2types.AttributeValue {
	return map[string]awsv2types.AttributeValue{
		"PK": &awsv2types.AttributeValueMemberS{Value: kvPK(c.namespace)},
		"SK": &awsv2types.AttributeValueMemberS{Value: sk},
	}
}

func (c *Client) getItem(ctx context.Context, sk string) (map[string]awsv2types.AttributeValue, error) {
	var out *awsv2dynamodb.GetItemOutput
	err := xray.Capture(ctx, "DynamoDB.GetBlob", func(ctx context.Context) error {
		var e error
		out, e = c.db.GetItem(ctx, &awsv2dynamodb.GetItemInput{
			TableName:      aws.String(c.tableName),
			Key:            c.keyAttrs(sk),
			ConsistentRead: aws.Bool(true),
		})
		return e
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return out.Item, nil
}

func (c *Client) manifest(ctx context.Context, key string) (item, bool, error) {
	raw, err := c.getItem(ctx, key)
	if err != nil {
		return item{}, false, fmt.Errorf("dynamodb kv: get %s: %w", key, err)
	}
	if raw == nil {
		return item{}, false, nil
	}
	var m item
	if err := attributevalue.UnmarshalMap(raw, &m); err != nil {
		return item{}, false, fmt.Errorf("dynamodb kv: decode %s: %w", key, err)
	}
	return m, true, nil
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	for attempt := 0; attempt < readAttempts; attempt++ {
		m, ok, err := c.manifest(ctx, key)
		if err != nil || !ok {
			return nil, false, err
		}
		if m.Chunks == 0 {
			return []byte(m.Value), true, nil
		}
		value, complete, err := c.readChunks(ctx, key, m)
		if err != nil {
			return nil, false, err
		}
		if complete {
			return value, true, nil
		}
	}
	return nil, false, fmt.Errorf("%w: %s", ErrTornRead, key)
}

// readChunks reports complete=false when a chunk vanished, which means a
// concurrent Set replaced the version the manifest pointed at.
func (c *Client) readChunks(ctx context.Context, key string, m item) ([]byte, bool, error) {
	var value []byte
	for i := 0; i < m.Chunks; i++ {
		sk := chunkSK(key, m.Version, i)
		raw, err := c.getItem(ctx, sk)
		if err != nil {
			return nil, false, fmt.Errorf("dynamodb kv: get %s: %w", sk, err)
		}
		if raw == nil {
			return nil, false, nil
		}
		var part chunk
		if err := attributevalue.UnmarshalMap(raw, &part); err != nil {
			return nil, false, fmt.Errorf("dynamodb kv: decode %s: %w", sk, err)
		}
		value = append(value, part.Data...)
	}
	return value, true, nil
}

func (c *Client) put(ctx context.Context, sk string, v any) error {
	av, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("dynamodb kv: encode %s: %w", sk, err)
	}
	return xray.Capture(ctx, "DynamoDB.PutBlob", func(ctx context.Context) error {
		_, err := c.db.PutItem(ctx, &awsv2dynamodb.PutItemInput{
			TableName: aws.String(c.tableName),
			Item:      av,
		})
		if err != nil {
			return fmt.Errorf("dynamodb kv: put %s: %w", sk, err)
		}
		return nil
	})
}

func (c *Client) delete(ctx context.Context, sk string) error {
	return xray.Capture(ctx, "DynamoDB.DeleteBlob", func(ctx context.Context) error {
		_, err := c.db.DeleteItem(ctx, &awsv2dynamodb.DeleteItemInput{
			TableName: aws.String(c.tableName),
			Key:       c.keyAttrs(sk),
		})
		if err != nil {
			return fmt.Errorf("dynamodb kv: delete %s: %w", sk, err)
		}
		return nil
	})
}

// dropChunks removes the chunks of a replaced version. Leftovers are
// unreachable once the manifest moved on, so failures are not reported.
func (c *Client) dropChunks(ctx context.Context, key string, old item, found bool) {
	if !found {
		return
	}
	for i := 0; i < old.Chunks; i++ {
		_ = c.delete(ctx, chunkSK(key, old.Version, i))
	}
}

func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	old, found, err := c.manifest(ctx, key)
	if err != nil {
		return err
	}
	m := item{
		PK:         kvPK(c.namespace),
		SK:         key,
		EntityType: "BLOB",
		UpdatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	if len(value) <= c.chunkSize {
		m.Value = string(value)
	} else {
		m.Version = c.newVersion()
		for i := 0; len(value) > 0; i++ {
			n := min(c.chunkSize, len(value))
			part := chunk{
				PK:         kvPK(c.namespace),
				SK:         chunkSK(key, m.Version, i),
				EntityType: "BLOB_CHUNK",
				Data:       value[:n],
			}
			if err := c.put(ctx, part.SK, part); err != nil {
				return err
			}
			value = value[n:]
			m.Chunks++
		}
	}
	if err := c.put(ctx, key, m); err != nil {
		return err
	}
	c.dropChunks(ctx, key, old, found)
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	old, found, err := c.manifest(ctx, key)
	if err != nil {
		return err
	}
	if err := c.delete(ctx, key); err != nil {
		return err
	}
	c.dropChunks(ctx, key, old, found)
	return nil
}
