package dynamo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/bastion/docid"
	"github.com/jacentio/bastion/schema"
	"github.com/jacentio/bastion/store"
)

// expr accumulates expression attribute names and values.
type expr struct {
	names  map[string]string
	values map[string]types.AttributeValue
}

func newExpr() *expr {
	return &expr{
		names:  map[string]string{},
		values: map[string]types.AttributeValue{},
	}
}

func (e *expr) name(field string) string {
	key := fmt.Sprintf("#f%d", len(e.names))
	e.names[key] = field
	return key
}

func (e *expr) value(av types.AttributeValue) string {
	key := fmt.Sprintf(":v%d", len(e.values))
	e.values[key] = av
	return key
}

// equals returns one condition clause per filter field except docid.Field,
// in field order. A nil filter value matches a missing or NULL attribute.
func (e *expr) equals(filter store.Query) ([]string, error) {
	fields := make([]string, 0, len(filter))
	for field := range filter {
		if field != docid.Field {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)

	clauses := make([]string, 0, len(fields))
	for _, field := range fields {
		want := filter[field]
		name := e.name(field)
		if want == nil {
			null := e.value(&types.AttributeValueMemberS{Value: "NULL"})
			clauses = append(clauses, fmt.Sprintf("(attribute_not_exists(%s) OR attribute_type(%s, %s))", name, name, null))
			continue
		}
		av, err := marshalValue(want)
		if err != nil {
			return nil, fmt.Errorf("dynamo: filter %s: %w", field, err)
		}
		clauses = append(clauses, fmt.Sprintf("%s = %s", name, e.value(av)))
	}
	return clauses, nil
}

// idEquals adds the key equality for id.
func (e *expr) idEquals(id docid.ID) string {
	return fmt.Sprintf("%s = %s", e.name(docid.Field), e.value(&types.AttributeValueMemberS{Value: id.Hex()}))
}

// set returns the SET clause for every field of doc except docid.Field, or
// an empty string when there is nothing to set.
func (e *expr) set(doc schema.Document) (string, error) {
	fields := make([]string, 0, len(doc))
	for field := range doc {
		if field != docid.Field {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)

	clauses := make([]string, 0, len(fields))
	for _, field := range fields {
		av, err := marshalValue(doc[field])
		if err != nil {
			return "", fmt.Errorf("dynamo: set %s: %w", field, err)
		}
		clauses = append(clauses, fmt.Sprintf("%s = %s", e.name(field), e.value(av)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "SET " + strings.Join(clauses, ", "), nil
}

func (e *expr) attrNames() map[string]string {
	if len(e.names) == 0 {
		return nil
	}
	return e.names
}

func (e *expr) attrValues() map[string]types.AttributeValue {
	if len(e.values) == 0 {
		return nil
	}
	return e.values
}

// marshalValue encodes one field value. Identifiers are stored as hex strings.
func marshalValue(v any) (types.AttributeValue, error) {
	if id, ok := v.(docid.ID); ok {
		return &types.AttributeValueMemberS{Value: id.Hex()}, nil
	}
	return attributevalue.Marshal(v)
}

// encode converts doc into a DynamoDB item.
func encode(doc schema.Document) (map[string]types.AttributeValue, error) {
	item := make(map[string]types.AttributeValue, len(doc))
	for field, v := range doc {
		av, err := marshalValue(v)
		if err != nil {
			return nil, fmt.Errorf("dynamo: encode %s: %w", field, err)
		}
		item[field] = av
	}
	return item, nil
}

// decode converts a DynamoDB item into a document with a native identifier.
func decode(item map[string]types.AttributeValue) (schema.Document, error) {
	if item == nil {
		return nil, nil
	}
	var out map[string]any
	if err := attributevalue.UnmarshalMap(item, &out); err != nil {
		return nil, fmt.Errorf("dynamo: decode: %w", err)
	}
	doc := schema.Document(out)
	if raw, ok := doc[docid.Field]; ok {
		doc[docid.Field] = docid.Normalize(raw)
	}
	return doc, nil
}
