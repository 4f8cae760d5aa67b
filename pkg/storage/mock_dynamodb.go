package storage

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

// MockDynamoDBAPI implements the dynamodbiface.DynamoDBAPI interface for
// testing. It keeps items in memory and understands the equality and
// begins_with conditions the stores build through the expression package.
type MockDynamoDBAPI struct {
	dynamodbiface.DynamoDBAPI
	mu     sync.RWMutex
	tables map[string]*mockTable
}

// mockTable represents a DynamoDB table in memory
type mockTable struct {
	name      string
	hashKey   string
	rangeKey  string
	items     map[string]map[string]*dynamodb.AttributeValue
	keySchema []*dynamodb.KeySchemaElement
	attrDefs  []*dynamodb.AttributeDefinition
}

// NewMockDynamoDBAPI creates a new mock DynamoDB client
func NewMockDynamoDBAPI() *MockDynamoDBAPI {
	return &MockDynamoDBAPI{
		tables: make(map[string]*mockTable),
	}
}

// CreateTable creates a mock table
func (m *MockDynamoDBAPI) CreateTable(input *dynamodb.CreateTableInput) (*dynamodb.CreateTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tableName := aws.StringValue(input.TableName)
	if _, exists := m.tables[tableName]; exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceInUseException, "table already exists", nil)
	}

	table := &mockTable{
		name:      tableName,
		items:     make(map[string]map[string]*dynamodb.AttributeValue),
		keySchema: input.KeySchema,
		attrDefs:  input.AttributeDefinitions,
	}
	for _, element := range input.KeySchema {
		switch aws.StringValue(element.KeyType) {
		case "HASH":
			table.hashKey = aws.StringValue(element.AttributeName)
		case "RANGE":
			table.rangeKey = aws.StringValue(element.AttributeName)
		}
	}

	m.tables[tableName] = table
	return &dynamodb.CreateTableOutput{}, nil
}

// DescribeTable describes a mock table
func (m *MockDynamoDBAPI) DescribeTable(input *dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tableName := aws.StringValue(input.TableName)
	table, exists := m.tables[tableName]
	if !exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, "table not found", nil)
	}

	return &dynamodb.DescribeTableOutput{
		Table: &dynamodb.TableDescription{
			TableName:   aws.String(table.name),
			TableStatus: aws.String("ACTIVE"),
			KeySchema:   table.keySchema,
		},
	}, nil
}

// WaitUntilTableExists returns immediately; mock tables are always ready
func (m *MockDynamoDBAPI) WaitUntilTableExists(input *dynamodb.DescribeTableInput) error {
	_, err := m.DescribeTable(input)
	return err
}

// PutItem stores an item in a mock table
func (m *MockDynamoDBAPI) PutItem(input *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, err := m.table(aws.StringValue(input.TableName))
	if err != nil {
		return nil, err
	}

	key, err := table.itemKey(input.Item)
	if err != nil {
		return nil, err
	}

	table.items[key] = input.Item
	return &dynamodb.PutItemOutput{}, nil
}

// GetItem retrieves an item from a mock table
func (m *MockDynamoDBAPI) GetItem(input *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	table, err := m.table(aws.StringValue(input.TableName))
	if err != nil {
		return nil, err
	}

	key, err := table.itemKey(input.Key)
	if err != nil {
		return nil, err
	}

	item, exists := table.items[key]
	if !exists {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

// DeleteItem removes an item from a mock table
func (m *MockDynamoDBAPI) DeleteItem(input *dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, err := m.table(aws.StringValue(input.TableName))
	if err != nil {
		return nil, err
	}

	key, err := table.itemKey(input.Key)
	if err != nil {
		return nil, err
	}

	if _, exists := table.items[key]; !exists {
		// attribute_exists conditions fail on missing items
		if input.ConditionExpression != nil {
			return nil, awserr.New(dynamodb.ErrCodeConditionalCheckFailedException, "item does not exist", nil)
		}
		return &dynamodb.DeleteItemOutput{}, nil
	}

	delete(table.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

// Query returns items matching the key condition and filter expressions
func (m *MockDynamoDBAPI) Query(input *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	table, err := m.table(aws.StringValue(input.TableName))
	if err != nil {
		return nil, err
	}

	keyMatcher, err := parseConditions(aws.StringValue(input.KeyConditionExpression), input.ExpressionAttributeNames, input.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	filterMatcher, err := parseConditions(aws.StringValue(input.FilterExpression), input.ExpressionAttributeNames, input.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	var items []map[string]*dynamodb.AttributeValue
	for _, item := range table.items {
		if keyMatcher.matches(item) && filterMatcher.matches(item) {
			items = append(items, item)
		}
	}

	output := &dynamodb.QueryOutput{
		Count: aws.Int64(int64(len(items))),
	}
	if aws.StringValue(input.Select) != "COUNT" {
		output.Items = items
	}
	return output, nil
}

// Scan returns items matching the filter expression
func (m *MockDynamoDBAPI) Scan(input *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	table, err := m.table(aws.StringValue(input.TableName))
	if err != nil {
		return nil, err
	}

	filterMatcher, err := parseConditions(aws.StringValue(input.FilterExpression), input.ExpressionAttributeNames, input.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	var items []map[string]*dynamodb.AttributeValue
	for _, item := range table.items {
		if filterMatcher.matches(item) {
			items = append(items, item)
		}
	}

	return &dynamodb.ScanOutput{
		Items: items,
		Count: aws.Int64(int64(len(items))),
	}, nil
}

func (m *MockDynamoDBAPI) table(name string) (*mockTable, error) {
	table, exists := m.tables[name]
	if !exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, fmt.Sprintf("table not found: %s", name), nil)
	}
	return table, nil
}

// itemKey builds the composite map key for an item from the table key schema
func (t *mockTable) itemKey(item map[string]*dynamodb.AttributeValue) (string, error) {
	hash, ok := item[t.hashKey]
	if !ok || hash.S == nil {
		return "", awserr.New("ValidationException", "missing hash key", nil)
	}
	key := aws.StringValue(hash.S)

	if t.rangeKey != "" {
		rng, ok := item[t.rangeKey]
		if !ok || rng.S == nil {
			return "", awserr.New("ValidationException", "missing range key", nil)
		}
		key += "|" + aws.StringValue(rng.S)
	}
	return key, nil
}

// condition is one parsed predicate from an expression string
type condition struct {
	attribute  string
	value      *dynamodb.AttributeValue
	beginsWith bool
}

// conditionSet matches items against every parsed condition
type conditionSet struct {
	conditions []condition
}

var (
	beginsWithPattern = regexp.MustCompile(`begins_with\s*\(\s*(#\w+)\s*,\s*(:\w+)\s*\)`)
	equalityPattern   = regexp.MustCompile(`(#\w+)\s*=\s*(:\w+)`)
)

// parseConditions extracts the begins_with and equality predicates produced
// by the expression builder. Unused expression shapes are rejected so a
// store change cannot silently pass the mock.
func parseConditions(expr string, names map[string]*string, values map[string]*dynamodb.AttributeValue) (conditionSet, error) {
	set := conditionSet{}
	if expr == "" {
		return set, nil
	}

	remaining := expr
	for _, match := range beginsWithPattern.FindAllStringSubmatch(expr, -1) {
		cond, err := resolveCondition(match[1], match[2], names, values)
		if err != nil {
			return set, err
		}
		cond.beginsWith = true
		set.conditions = append(set.conditions, cond)
		remaining = strings.Replace(remaining, match[0], "", 1)
	}

	for _, match := range equalityPattern.FindAllStringSubmatch(remaining, -1) {
		cond, err := resolveCondition(match[1], match[2], names, values)
		if err != nil {
			return set, err
		}
		set.conditions = append(set.conditions, cond)
		remaining = strings.Replace(remaining, match[0], "", 1)
	}

	leftover := strings.Trim(remaining, " ()ANDandor")
	if leftover != "" {
		return set, awserr.New("ValidationException", fmt.Sprintf("unsupported expression: %s", expr), nil)
	}
	return set, nil
}

func resolveCondition(namePlaceholder, valuePlaceholder string, names map[string]*string, values map[string]*dynamodb.AttributeValue) (condition, error) {
	name, ok := names[namePlaceholder]
	if !ok {
		return condition{}, awserr.New("ValidationException", fmt.Sprintf("unknown name placeholder %s", namePlaceholder), nil)
	}
	value, ok := values[valuePlaceholder]
	if !ok {
		return condition{}, awserr.New("ValidationException", fmt.Sprintf("unknown value placeholder %s", valuePlaceholder), nil)
	}
	return condition{attribute: aws.StringValue(name), value: value}, nil
}

func (s conditionSet) matches(item map[string]*dynamodb.AttributeValue) bool {
	for _, cond := range s.conditions {
		attr, ok := item[cond.attribute]
		if !ok {
			return false
		}
		if cond.beginsWith {
			if attr.S == nil || cond.value.S == nil {
				return false
			}
			if !strings.HasPrefix(aws.StringValue(attr.S), aws.StringValue(cond.value.S)) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(attr, cond.value) {
			return false
		}
	}
	return true
}
