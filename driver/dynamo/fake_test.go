package dynamo

import (
	"context"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/bastion/docid"
)

// fakeClient keeps items in memory. Scans ignore filter expressions and
// conditions only check item existence; expression text is asserted
// separately.
type fakeClient struct {
	mu       sync.Mutex
	tables   map[string]map[string]map[string]types.AttributeValue
	order    map[string][]string
	pageSize int

	scans       []dynamodb.ScanInput
	failCond    bool
	createCalls int
}

func newFake() *fakeClient {
	return &fakeClient{
		tables: map[string]map[string]map[string]types.AttributeValue{},
		order:  map[string][]string{},
	}
}

func itemID(item map[string]types.AttributeValue) string {
	if s, ok := item[docid.Field].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeClient) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	if f.tables[name] == nil {
		f.tables[name] = map[string]map[string]types.AttributeValue{}
	}
	id := itemID(in.Item)
	if _, exists := f.tables[name][id]; exists && in.ConditionExpression != nil {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	}
	f.tables[name][id] = in.Item
	f.order[name] = append(f.order[name], id)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	item, ok := f.tables[name][itemID(in.Key)]
	if !ok || f.failCond {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition")}
	}

	updated := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		updated[k] = v
	}
	assignments := strings.TrimPrefix(aws.ToString(in.UpdateExpression), "SET ")
	for _, a := range strings.Split(assignments, ", ") {
		parts := strings.SplitN(a, " = ", 2)
		updated[in.ExpressionAttributeNames[parts[0]]] = in.ExpressionAttributeValues[parts[1]]
	}
	f.tables[name][itemID(in.Key)] = updated
	return &dynamodb.UpdateItemOutput{Attributes: updated}, nil
}

func (f *fakeClient) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	id := itemID(in.Key)
	item, ok := f.tables[name][id]
	if !ok || f.failCond {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition")}
	}
	delete(f.tables[name], id)
	return &dynamodb.DeleteItemOutput{Attributes: item}, nil
}

func (f *fakeClient) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, *in)
	name := aws.ToString(in.TableName)

	var ids []string
	for _, id := range f.order[name] {
		if _, ok := f.tables[name][id]; ok {
			ids = append(ids, id)
		}
	}
	if in.TotalSegments != nil {
		var seg []string
		for i, id := range ids {
			if int32(i)%aws.ToInt32(in.TotalSegments) == aws.ToInt32(in.Segment) {
				seg = append(seg, id)
			}
		}
		ids = seg
	}

	start := 0
	if in.ExclusiveStartKey != nil {
		last := itemID(in.ExclusiveStartKey)
		for i, id := range ids {
			if id == last {
				start = i + 1
			}
		}
	}
	end := len(ids)
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
	}

	out := &dynamodb.ScanOutput{}
	for _, id := range ids[start:end] {
		out.Count++
		if in.Select != types.SelectCount {
			out.Items = append(out.Items, f.tables[name][id])
		}
	}
	if end < len(ids) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			docid.Field: &types.AttributeValueMemberS{Value: ids[end-1]},
		}
	}
	return out, nil
}

func (f *fakeClient) ListTables(ctx context.Context, in *dynamodb.ListTablesInput, _ ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &dynamodb.ListTablesOutput{}
	for name := range f.tables {
		out.TableNames = append(out.TableNames, name)
	}
	return out, nil
}

func (f *fakeClient) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	name := aws.ToString(in.TableName)
	if _, ok := f.tables[name]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("in use")}
	}
	f.tables[name] = map[string]map[string]types.AttributeValue{}
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeClient) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:   in.TableName,
			TableStatus: types.TableStatusActive,
		},
	}, nil
}
