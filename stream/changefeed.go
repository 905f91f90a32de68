// Package stream turns DynamoDB stream records of collection tables into
// change events that have been through each collection's read filter.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/bastion/docid"
	"github.com/jacentio/bastion/internal/shard"
	"github.com/jacentio/bastion/schema"
	"github.com/jacentio/bastion/store"
)

// ChangeType is the kind of write a Change reports.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeModify ChangeType = "modify"
	ChangeRemove ChangeType = "remove"
)

// Change is one filtered document change.
type Change struct {
	Type       ChangeType      `json:"type"`
	Collection string          `json:"collection"`
	ID         docid.ID        `json:"id"`
	Document   schema.Document `json:"document,omitempty"`
}

// Sink receives changes. Changes of one document arrive in stream order.
type Sink func(ctx context.Context, change Change) error

// Config holds configuration for a Handler.
type Config struct {
	// TablePrefix is stripped from table names to find the collection.
	TablePrefix string

	// Lanes is the number of documents processed concurrently.
	// Default: 1
	Lanes int

	// Logger receives handler logs. Default: slog.Default()
	Logger *slog.Logger
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Lanes < 1 {
		c.Lanes = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Handler processes DynamoDB stream events of collection tables.
type Handler struct {
	registry *store.Registry
	sink     Sink
	config   Config
	logger   *slog.Logger
}

// NewHandler creates a new stream handler. Records of tables without a
// registered collection are skipped.
func NewHandler(registry *store.Registry, sink Sink, config Config) *Handler {
	config.validate()
	if registry == nil {
		registry = store.NewRegistry()
	}
	return &Handler{
		registry: registry,
		sink:     sink,
		config:   config,
		logger:   config.Logger,
	}
}

// HandleChanges processes a batch of stream records.
// This function is designed to be used as an AWS Lambda handler: any error
// fails the batch so that it is retried.
func (h *Handler) HandleChanges(ctx context.Context, event events.DynamoDBEvent) error {
	lanes := make([][]events.DynamoDBEventRecord, h.config.Lanes)
	for _, record := range event.Records {
		lane := shard.Of(getStringAttr(record.Change.Keys, docid.Field), h.config.Lanes)
		lanes[lane] = append(lanes[lane], record)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, records := range lanes {
		if len(records) == 0 {
			continue
		}
		g.Go(func() error {
			for _, record := range records {
				if err := h.processRecord(ctx, record); err != nil {
					h.logger.Error("failed to process record",
						"eventID", record.EventID,
						"lane", shard.Label(i),
						"error", err,
					)
					return err // Will retry, eventually DLQ
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// processRecord filters a single record and hands it to the sink.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	var (
		typ   ChangeType
		image map[string]events.DynamoDBAttributeValue
	)
	switch record.EventName {
	case "INSERT":
		typ, image = ChangeInsert, record.Change.NewImage
	case "MODIFY":
		typ, image = ChangeModify, record.Change.NewImage
	case "REMOVE":
		typ, image = ChangeRemove, record.Change.OldImage
	default:
		return nil
	}

	table := TableName(record.EventSourceArn)
	name, ok := strings.CutPrefix(table, h.config.TablePrefix)
	if !ok {
		return nil
	}
	collection, ok := h.registry.Get(name)
	if !ok {
		h.logger.Debug("skipping record of unknown collection", "table", table)
		return nil
	}

	change := Change{
		Type:       typ,
		Collection: name,
		ID:         docid.Normalize(getStringAttr(record.Change.Keys, docid.Field)),
	}

	// KEYS_ONLY streams carry no image.
	if len(image) > 0 {
		doc, err := ConvertImage(image)
		if err != nil {
			return fmt.Errorf("convert image: %w", err)
		}
		doc, err = collection.Filter(ctx, doc)
		if err != nil {
			return fmt.Errorf("filter %s: %w", change.ID.Hex(), err)
		}
		change.Document = doc
	}

	return h.sink(ctx, change)
}

// TableName extracts the table name from a stream ARN such as
// arn:aws:dynamodb:region:account:table/NAME/stream/LABEL.
func TableName(arn string) string {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}

// ConvertImage converts a stream image into a document. The identifier is
// returned in its native form.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) (schema.Document, error) {
	var out map[string]any
	if err := attributevalue.UnmarshalMap(ConvertStreamKey(image), &out); err != nil {
		return nil, err
	}
	doc := schema.Document(out)
	if doc == nil {
		doc = schema.Document{}
	}
	if raw, ok := doc[docid.Field]; ok {
		doc[docid.Field] = docid.Normalize(raw)
	}
	return doc, nil
}

// ConvertStreamKey converts a stream key or image to SDK attribute values.
func ConvertStreamKey(streamKey map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(streamKey))
	for k, v := range streamKey {
		if av := convertValue(v); av != nil {
			result[k] = av
		}
	}
	return result
}

func convertValue(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := v.List()
		out := make([]types.AttributeValue, 0, len(list))
		for _, item := range list {
			if av := convertValue(item); av != nil {
				out = append(out, av)
			}
		}
		return &types.AttributeValueMemberL{Value: out}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertStreamKey(v.Map())}
	}
	return nil
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}
