package docstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	items        map[string]map[string]types.AttributeValue
	queries      []*dynamodb.QueryInput
	pages        [][]map[string]types.AttributeValue
	transactions [][]types.TransactWriteItem
	updates      []*dynamodb.UpdateItemInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(key map[string]types.AttributeValue) string {
	return key["PK"].(*types.AttributeValueMemberS).Value + "/" + key["SK"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	cp := *in
	f.queries = append(f.queries, &cp)
	page := len(f.queries) - 1
	if page >= len(f.pages) {
		return &dynamodb.QueryOutput{}, nil
	}
	out := &dynamodb.QueryOutput{Items: f.pages[page]}
	if page < len(f.pages)-1 {
		out.LastEvaluatedKey = map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: "next"}}
	}
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.transactions = append(f.transactions, in.TransactItems)
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func mustItem(t *testing.T, collection, id string, doc Document) map[string]types.AttributeValue {
	t.Helper()
	item, err := encodeItem(collection, id, doc)
	require.NoError(t, err)
	return item
}

func TestDynamoStore_PutGetRoundTrip(t *testing.T) {
	fake := newFakeDynamo()
	s := NewDynamoStore(fake, "loadboard")
	ctx := context.Background()

	rate := 1200.0
	require.NoError(t, s.Set(ctx, "loads", "s1_1", Document{"rate": &rate, "weight": (*float64)(nil), "status": "OPEN"}, false))

	doc, err := s.Get(ctx, "loads", "s1_1")
	require.NoError(t, err)
	assert.Equal(t, 1200.0, doc["rate"])
	assert.Nil(t, doc["weight"])
	assert.NotContains(t, doc, "PK")

	_, err = s.Get(ctx, "loads", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoStore_QueryPaginatesAndFilters(t *testing.T) {
	fake := newFakeDynamo()
	fake.pages = [][]map[string]types.AttributeValue{
		{mustItem(t, "loads", "a", Document{"rowHash": "h1", "createdAt": "2026-01-01T00:00:00.000Z"})},
		{mustItem(t, "loads", "b", Document{"rowHash": "h2", "createdAt": "2026-02-01T00:00:00.000Z"})},
	}
	s := NewDynamoStore(fake, "loadboard")

	snaps, err := s.Query(context.Background(), Query{
		Collection: "loads",
		Filters:    []Filter{Where("rowHash", OpIn, []string{"h1", "h2"}), Where("status", OpNotEq, "deleted")},
		OrderBy:    "createdAt",
		Desc:       true,
	})
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "b", snaps[0].ID)

	require.Len(t, fake.queries, 2)
	first := fake.queries[0]
	assert.Equal(t, "#f0 IN (:v0_0, :v0_1) AND (attribute_exists(#f1) AND #f1 <> :v1)", aws.ToString(first.FilterExpression))
	assert.Equal(t, "rowHash", first.ExpressionAttributeNames["#f0"])
	var status string
	require.NoError(t, attributevalue.Unmarshal(first.ExpressionAttributeValues[":v1"], &status))
	assert.Equal(t, "deleted", status)
	assert.NotNil(t, fake.queries[1].ExclusiveStartKey)
}

func TestDynamoStore_CommitBatchChunksTransactions(t *testing.T) {
	fake := newFakeDynamo()
	s := NewDynamoStore(fake, "loadboard")

	writes := make([]Write, 250)
	for i := range writes {
		writes[i] = Write{Collection: "loads", ID: fmt.Sprintf("s_%d", i), Data: Document{"status": "OPEN"}}
	}
	writes[0].Kind = WriteMerge

	require.NoError(t, s.CommitBatch(context.Background(), writes))
	require.Len(t, fake.transactions, 3)
	assert.Len(t, fake.transactions[0], 100)
	assert.Len(t, fake.transactions[2], 50)
	assert.NotNil(t, fake.transactions[0][0].Update)
	assert.Equal(t, "SET #a0 = :a0", aws.ToString(fake.transactions[0][0].Update.UpdateExpression))
	assert.NotNil(t, fake.transactions[0][1].Put)
}
