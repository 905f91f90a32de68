// Package dynamo stores collections in DynamoDB tables.
//
// Each collection maps to one table named TablePrefix+collection with a
// string partition key "_id" holding the identifier in hex form. Queries are
// evaluated with filtered scans, so this backend suits small or
// administrative collections rather than hot paths.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/bastion/docid"
	"github.com/jacentio/bastion/internal/query"
	"github.com/jacentio/bastion/internal/shard"
	"github.com/jacentio/bastion/schema"
	"github.com/jacentio/bastion/store"
)

// ErrDuplicateID is returned when inserting a document whose identifier is
// already taken.
var ErrDuplicateID = errors.New("dynamo: duplicate _id")

// API is the subset of the DynamoDB client used by the backend.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// DB is a DynamoDB-backed store.Backend.
type DB struct {
	client API
	config Config
	logger *slog.Logger
}

// New creates a DB using an existing client.
func New(client API, config Config) *DB {
	config.validate()
	return &DB{
		client: client,
		config: config,
		logger: config.Logger.With("driver", "dynamo"),
	}
}

// Open loads the AWS configuration described by config and creates a DB.
func Open(ctx context.Context, config Config) (*DB, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	if config.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(config.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("dynamo: load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
	})
	return New(client, config), nil
}

// TableName returns the DynamoDB table backing the named collection.
func (d *DB) TableName(collection string) string {
	return d.config.TablePrefix + collection
}

// Table returns the handle of the named collection.
func (d *DB) Table(name string) store.Table {
	return &table{db: d, name: d.TableName(name)}
}

// ListCollections returns the existing collections called name.
func (d *DB) ListCollections(ctx context.Context, name string) ([]string, error) {
	want := d.TableName(name)
	paginator := dynamodb.NewListTablesPaginator(d.client, &dynamodb.ListTablesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range page.TableNames {
			if t == want {
				return []string{name}, nil
			}
		}
	}
	return nil, nil
}

// EnsureTable creates the table of the named collection when missing and
// waits until it is active.
func (d *DB) EnsureTable(ctx context.Context, name string, wait time.Duration) error {
	tableName := d.TableName(name)
	_, err := d.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(docid.Field), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(docid.Field), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
		StreamSpecification: &types.StreamSpecification{
			StreamEnabled:  aws.Bool(true),
			StreamViewType: types.StreamViewTypeNewAndOldImages,
		},
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("dynamo: create table %s: %w", tableName, err)
	}
	if err == nil {
		d.logger.Info("table created", "table", tableName)
	}

	waiter := dynamodb.NewTableExistsWaiter(d.client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, wait)
}

type table struct {
	db   *DB
	name string
}

func (t *table) InsertOne(ctx context.Context, doc schema.Document) (schema.Document, error) {
	stored := schema.Clone(doc)
	if stored == nil {
		stored = schema.Document{}
	}
	if raw, ok := stored[docid.Field]; ok {
		id := docid.Normalize(raw)
		if docid.IsNil(id) {
			return nil, fmt.Errorf("dynamo: invalid _id %v", raw)
		}
		stored[docid.Field] = id
	} else {
		stored[docid.Field] = docid.New()
	}

	item, err := encode(stored)
	if err != nil {
		return nil, err
	}

	_, err = t.db.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(t.name),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": docid.Field},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, ErrDuplicateID
		}
		return nil, err
	}
	return stored, nil
}

func (t *table) Find(ctx context.Context, filter store.Query, order store.Sort) ([]schema.Document, error) {
	input, ok, err := t.scanInput(filter)
	if err != nil || !ok {
		return nil, err
	}

	var docs []schema.Document
	err = t.scan(ctx, input, func(page *dynamodb.ScanOutput) error {
		for _, item := range page.Items {
			doc, err := decode(item)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	query.Sort(docs, order)
	return docs, nil
}

func (t *table) FindOneAndUpdate(ctx context.Context, filter store.Query, set schema.Document) (schema.Document, error) {
	id, ok, err := t.resolve(ctx, filter)
	if err != nil || !ok {
		return nil, err
	}

	e := newExpr()
	update, err := e.set(set)
	if err != nil {
		return nil, err
	}
	if update == "" {
		docs, err := t.Find(ctx, withID(filter, id), nil)
		if err != nil || len(docs) == 0 {
			return nil, err
		}
		return docs[0], nil
	}
	cond, err := t.condition(e, filter)
	if err != nil {
		return nil, err
	}

	out, err := t.db.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t.name),
		Key:                       key(id),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  e.attrNames(),
		ExpressionAttributeValues: e.attrValues(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, nil
		}
		return nil, err
	}
	return decode(out.Attributes)
}

func (t *table) FindOneAndDelete(ctx context.Context, filter store.Query) (schema.Document, error) {
	id, ok, err := t.resolve(ctx, filter)
	if err != nil || !ok {
		return nil, err
	}

	e := newExpr()
	cond, err := t.condition(e, filter)
	if err != nil {
		return nil, err
	}

	out, err := t.db.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(t.name),
		Key:                       key(id),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  e.attrNames(),
		ExpressionAttributeValues: e.attrValues(),
		ReturnValues:              types.ReturnValueAllOld,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, nil
		}
		return nil, err
	}
	return decode(out.Attributes)
}

func (t *table) Count(ctx context.Context) (int64, error) {
	var count int64
	err := t.scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(t.name),
		Select:    types.SelectCount,
	}, func(page *dynamodb.ScanOutput) error {
		count += int64(page.Count)
		return nil
	})
	return count, err
}

// resolve returns the identifier of the document addressed by filter. A
// filter without an identifier is resolved with a scan for its first match.
func (t *table) resolve(ctx context.Context, filter store.Query) (docid.ID, bool, error) {
	if raw, ok := filter[docid.Field]; ok {
		id := docid.Normalize(raw)
		return id, !docid.IsNil(id), nil
	}
	docs, err := t.Find(ctx, filter, nil)
	if err != nil || len(docs) == 0 {
		return docid.Nil, false, err
	}
	return docid.Of(docs[0]), true, nil
}

// condition returns a condition expression requiring the item to exist and
// to match every non-key filter field.
func (t *table) condition(e *expr, filter store.Query) (string, error) {
	clauses, err := e.equals(filter)
	if err != nil {
		return "", err
	}
	clauses = append([]string{fmt.Sprintf("attribute_exists(%s)", e.name(docid.Field))}, clauses...)
	return strings.Join(clauses, " AND "), nil
}

// scanInput builds the filtered scan for filter. ok is false when the filter
// cannot match anything.
func (t *table) scanInput(filter store.Query) (*dynamodb.ScanInput, bool, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(t.name)}

	e := newExpr()
	var clauses []string
	if raw, ok := filter[docid.Field]; ok {
		id := docid.Normalize(raw)
		if docid.IsNil(id) {
			return nil, false, nil
		}
		clauses = append(clauses, e.idEquals(id))
	}
	rest, err := e.equals(filter)
	if err != nil {
		return nil, false, err
	}
	clauses = append(clauses, rest...)

	if len(clauses) > 0 {
		input.FilterExpression = aws.String(strings.Join(clauses, " AND "))
		input.ExpressionAttributeNames = e.attrNames()
		input.ExpressionAttributeValues = e.attrValues()
	}
	return input, true, nil
}

// scan runs input to completion, calling fn for every page. With
// ScanSegments > 1 the segments are scanned in parallel and fn calls are
// serialized.
func (t *table) scan(ctx context.Context, input *dynamodb.ScanInput, fn func(*dynamodb.ScanOutput) error) error {
	segments := shard.Segments(t.db.config.ScanSegments)
	if len(segments) == 1 {
		return t.scanSegment(ctx, input, fn)
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for _, seg := range segments {
		in := *input
		in.Segment = aws.Int32(seg)
		in.TotalSegments = aws.Int32(int32(len(segments)))
		g.Go(func() error {
			err := t.scanSegment(ctx, &in, func(page *dynamodb.ScanOutput) error {
				mu.Lock()
				defer mu.Unlock()
				return fn(page)
			})
			if err != nil {
				t.db.logger.Warn("scan segment failed",
					"table", t.name,
					"segment", shard.Label(int(seg)),
					"error", err,
				)
			}
			return err
		})
	}
	return g.Wait()
}

func (t *table) scanSegment(ctx context.Context, input *dynamodb.ScanInput, fn func(*dynamodb.ScanOutput) error) error {
	paginator := dynamodb.NewScanPaginator(t.db.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		if err := fn(page); err != nil {
			return err
		}
	}
	return nil
}

func withID(filter store.Query, id docid.ID) store.Query {
	out := make(store.Query, len(filter)+1)
	for k, v := range filter {
		out[k] = v
	}
	out[docid.Field] = id
	return out
}

func key(id docid.ID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		docid.Field: &types.AttributeValueMemberS{Value: id.Hex()},
	}
}
