package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type DynamoClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

var _ DynamoClient = (*dynamodb.Client)(nil)

// DynamoStore keeps one item per session: PK SESSION#<id>, SK STATE, the
// session JSON in Payload and an ExpiresAt TTL attribute.
type DynamoStore struct {
	Client DynamoClient
	Table  string
	TTL    time.Duration
	Now    func() time.Time
}

func NewDynamoStore(client DynamoClient, table string, ttl time.Duration) *DynamoStore {
	return &DynamoStore{Client: client, Table: table, TTL: ttl, Now: time.Now}
}

func sessionKey(id string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"PK": &ddbtypes.AttributeValueMemberS{Value: "SESSION#" + id},
		"SK": &ddbtypes.AttributeValueMemberS{Value: "STATE"},
	}
}

func (d *DynamoStore) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *DynamoStore) Load(ctx context.Context, id string) (*Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errMissingID
	}
	out, err := d.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.Table),
		Key:            sessionKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("session GetItem: %w", err)
	}
	if len(out.Item) == 0 {
		return New(id), nil
	}

	// TTL deletion lags, so expired items can still be returned
	if exp, ok := out.Item["ExpiresAt"].(*ddbtypes.AttributeValueMemberN); ok {
		if n, err := strconv.ParseInt(exp.Value, 10, 64); err == nil && n <= d.now().Unix() {
			return New(id), nil
		}
	}

	payload, ok := out.Item["Payload"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("session %s: missing payload", id)
	}
	return decode(id, []byte(payload.Value))
}

func (d *DynamoStore) Save(ctx context.Context, s *Session) error {
	if strings.TrimSpace(s.ID) == "" {
		return errMissingID
	}
	now := d.now()
	s.UpdatedAt = now
	b, err := encode(s)
	if err != nil {
		return err
	}

	item := sessionKey(s.ID)
	item["Payload"] = &ddbtypes.AttributeValueMemberS{Value: string(b)}
	item["UpdatedAt"] = &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)}
	if d.TTL > 0 {
		item["ExpiresAt"] = &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(d.TTL).Unix(), 10)}
	}

	if _, err := d.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.Table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("session PutItem: %w", err)
	}
	return nil
}
