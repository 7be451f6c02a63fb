package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// maxTransactItems is DynamoDB's TransactWriteItems limit.
const maxTransactItems = 100

// DynamoAPI is the subset of *dynamodb.Client the store calls.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoStore maps collections onto one table: PK is the collection, SK the
// document id, and document fields are top-level attributes.
//
// A batch of more than 100 writes is split into several transactions, so it
// is atomic per chunk only.
type DynamoStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoStore wraps a DynamoDB client.
func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

// NewDynamoStoreFromConfig builds the client from an AWS config.
func NewDynamoStoreFromConfig(cfg aws.Config, table string) *DynamoStore {
	return NewDynamoStore(dynamodb.NewFromConfig(cfg), table)
}

func dynamoKey(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: collection},
		"SK": &types.AttributeValueMemberS{Value: id},
	}
}

func (s *DynamoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            dynamoKey(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return decodeItem(out.Item)
}

func (s *DynamoStore) Query(ctx context.Context, q Query) ([]Snapshot, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	in := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String("#pk = :pk"),
		ExpressionAttributeNames:  map[string]string{"#pk": "PK"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": &types.AttributeValueMemberS{Value: q.Collection}},
	}
	if len(q.Filters) > 0 {
		expr, err := filterExpression(q.Filters, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		in.FilterExpression = aws.String(expr)
	}

	// Limit applies before FilterExpression in DynamoDB, so pages are read in
	// full and ordering/limit happen here.
	var out []Snapshot
	for {
		page, err := s.client.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Collection, err)
		}
		for _, item := range page.Items {
			id := ""
			if sk, ok := item["SK"].(*types.AttributeValueMemberS); ok {
				id = sk.Value
			}
			doc, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			out = append(out, Snapshot{ID: id, Data: doc})
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}
	return sortAndLimit(out, q), nil
}

func filterExpression(filters []Filter, names map[string]string, values map[string]types.AttributeValue) (string, error) {
	clauses := make([]string, 0, len(filters))
	for i, f := range filters {
		name := fmt.Sprintf("#f%d", i)
		names[name] = f.Field
		switch f.Op {
		case OpIn:
			vals, _ := inValues(f.Value)
			placeholders := make([]string, len(vals))
			for j, v := range vals {
				ph := fmt.Sprintf(":v%d_%d", i, j)
				av, err := attributevalue.Marshal(sanitizeValue(v))
				if err != nil {
					return "", fmt.Errorf("%w: %v", ErrInvalidQuery, err)
				}
				values[ph] = av
				placeholders[j] = ph
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", name, strings.Join(placeholders, ", ")))
		default:
			ph := fmt.Sprintf(":v%d", i)
			av, err := attributevalue.Marshal(sanitizeValue(f.Value))
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrInvalidQuery, err)
			}
			values[ph] = av
			op := map[Operator]string{OpEq: "=", OpNotEq: "<>", OpLt: "<"}[f.Op]
			if f.Op == OpNotEq {
				clauses = append(clauses, fmt.Sprintf("(attribute_exists(%s) AND %s %s %s)", name, name, op, ph))
			} else {
				clauses = append(clauses, fmt.Sprintf("%s %s %s", name, op, ph))
			}
		}
	}
	return strings.Join(clauses, " AND "), nil
}

func (s *DynamoStore) CommitBatch(ctx context.Context, writes []Write) error {
	if err := validateBatch(writes); err != nil {
		return err
	}
	for start := 0; start < len(writes); start += maxTransactItems {
		end := min(start+maxTransactItems, len(writes))
		items := make([]types.TransactWriteItem, 0, end-start)
		for _, w := range writes[start:end] {
			item, err := s.transactItem(w)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
			return fmt.Errorf("transact write: %w", err)
		}
	}
	return nil
}

func (s *DynamoStore) transactItem(w Write) (types.TransactWriteItem, error) {
	if w.Kind == WriteMerge {
		upd, err := s.updateInput(w.Collection, w.ID, w.Data)
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		return types.TransactWriteItem{Update: &types.Update{
			TableName:                 upd.TableName,
			Key:                       upd.Key,
			UpdateExpression:          upd.UpdateExpression,
			ExpressionAttributeNames:  upd.ExpressionAttributeNames,
			ExpressionAttributeValues: upd.ExpressionAttributeValues,
		}}, nil
	}
	item, err := encodeItem(w.Collection, w.ID, w.Data)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Put: &types.Put{TableName: aws.String(s.table), Item: item}}, nil
}

func (s *DynamoStore) Add(ctx context.Context, collection string, doc Document) (string, error) {
	id := uuid.NewString()
	return id, s.Set(ctx, collection, id, doc, false)
}

func (s *DynamoStore) Set(ctx context.Context, collection, id string, doc Document, mergeFields bool) error {
	if collection == "" || id == "" {
		return ErrEmptyDocumentKey
	}
	if mergeFields {
		in, err := s.updateInput(collection, id, doc)
		if err != nil {
			return err
		}
		if _, err := s.client.UpdateItem(ctx, in); err != nil {
			return fmt.Errorf("merge %s/%s: %w", collection, id, err)
		}
		return nil
	}
	item, err := encodeItem(collection, id, doc)
	if err != nil {
		return err
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.table), Item: item}); err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

// updateInput renders a merge as "SET #a0 = :a0, ...". Key attributes are never overwritten.
func (s *DynamoStore) updateInput(collection, id string, doc Document) (*dynamodb.UpdateItemInput, error) {
	clean := Sanitize(doc)
	fields := make([]string, 0, len(clean))
	for k := range clean {
		if k != "PK" && k != "SK" {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)

	in := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key:       dynamoKey(collection, id),
	}
	if len(fields) == 0 {
		// creates the item when missing, like a merge of an empty document
		in.UpdateExpression = aws.String("SET #t = if_not_exists(#t, :zero)")
		in.ExpressionAttributeNames = map[string]string{"#t": "_touched"}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{":zero": &types.AttributeValueMemberN{Value: "0"}}
		return in, nil
	}

	names := make(map[string]string, len(fields))
	values := make(map[string]types.AttributeValue, len(fields))
	sets := make([]string, len(fields))
	for i, f := range fields {
		n, v := fmt.Sprintf("#a%d", i), fmt.Sprintf(":a%d", i)
		av, err := attributevalue.Marshal(clean[f])
		if err != nil {
			return nil, fmt.Errorf("encode %s/%s field %s: %w", collection, id, f, err)
		}
		names[n] = f
		values[v] = av
		sets[i] = n + " = " + v
	}
	in.UpdateExpression = aws.String("SET " + strings.Join(sets, ", "))
	in.ExpressionAttributeNames = names
	in.ExpressionAttributeValues = values
	return in, nil
}

func encodeItem(collection, id string, doc Document) (map[string]types.AttributeValue, error) {
	clean := Sanitize(doc)
	if clean == nil {
		clean = Document{}
	}
	item, err := attributevalue.MarshalMap(map[string]any(clean))
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	for k, v := range dynamoKey(collection, id) {
		item[k] = v
	}
	return item, nil
}

func decodeItem(item map[string]types.AttributeValue) (Document, error) {
	var doc map[string]any
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	delete(doc, "PK")
	delete(doc, "SK")
	delete(doc, "_touched")
	return Sanitize(doc), nil
}
