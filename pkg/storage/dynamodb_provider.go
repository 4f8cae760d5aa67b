package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/dynamodb/expression"

	"github.com/gauntlethq/gauntlet/pkg/auth"
	"github.com/gauntlethq/gauntlet/pkg/plugins"
)

// DynamoDBProvider implements the StorageProvider interface using DynamoDB
type DynamoDBProvider struct {
	client        dynamodbiface.DynamoDBAPI
	instanceStore *DynamoDBInstanceStore
	secretStore   *DynamoDBSecretStore
	accountStore  *DynamoDBAccountStore
	tablePrefix   string
}

// DynamoDBProviderConfig contains configuration for the DynamoDB provider
type DynamoDBProviderConfig struct {
	Region      string
	AccessKey   string
	SecretKey   string
	TablePrefix string
	Endpoint    string // Optional, for local DynamoDB
}

// NewDynamoDBProvider creates a new DynamoDB storage provider
func NewDynamoDBProvider(config DynamoDBProviderConfig) (*DynamoDBProvider, error) {
	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}

	// Set credentials if provided
	if config.AccessKey != "" && config.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"",
		)
	}

	// Set endpoint for local DynamoDB if provided
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewDynamoDBProviderWithClient(dynamodb.New(sess), config.TablePrefix), nil
}

// NewDynamoDBProviderWithClient creates a new DynamoDB storage provider with a
// custom client. This is primarily used for testing with mock clients.
func NewDynamoDBProviderWithClient(client dynamodbiface.DynamoDBAPI, tablePrefix string) *DynamoDBProvider {
	provider := &DynamoDBProvider{
		client:      client,
		tablePrefix: tablePrefix,
	}

	provider.instanceStore = NewDynamoDBInstanceStore(client, tablePrefix)
	provider.secretStore = NewDynamoDBSecretStore(client, tablePrefix)
	provider.accountStore = NewDynamoDBAccountStore(client, tablePrefix)

	return provider
}

// Initialize sets up the storage backend
func (p *DynamoDBProvider) Initialize() error {
	if err := p.instanceStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize instance store: %w", err)
	}

	if err := p.secretStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize secret store: %w", err)
	}

	if err := p.accountStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize account store: %w", err)
	}

	return nil
}

// Close cleans up resources
func (p *DynamoDBProvider) Close() error {
	// DynamoDB client does not need explicit cleanup
	return nil
}

// GetInstanceStore returns a store for plugin instances
func (p *DynamoDBProvider) GetInstanceStore() InstanceStore {
	return p.instanceStore
}

// GetSecretStore returns a store for secrets
func (p *DynamoDBProvider) GetSecretStore() SecretStore {
	return p.secretStore
}

// GetAccountStore returns a store for account data
func (p *DynamoDBProvider) GetAccountStore() AccountStore {
	return p.accountStore
}

// ensureTable creates a DynamoDB table if it does not exist yet and waits
// until it is ready.
func ensureTable(client dynamodbiface.DynamoDBAPI, input *dynamodb.CreateTableInput) error {
	_, err := client.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: input.TableName,
	})

	if err == nil {
		// Table exists
		return nil
	}

	aerr, ok := err.(awserr.Error)
	if !ok || aerr.Code() != dynamodb.ErrCodeResourceNotFoundException {
		return fmt.Errorf("failed to check if table exists: %w", err)
	}

	if _, err := client.CreateTable(input); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	err = client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
		TableName: input.TableName,
	})
	if err != nil {
		return fmt.Errorf("failed to wait for table creation: %w", err)
	}

	return nil
}

// DynamoDBInstanceStore implements the InstanceStore interface using DynamoDB
type DynamoDBInstanceStore struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
}

// NewDynamoDBInstanceStore creates a new DynamoDB instance store
func NewDynamoDBInstanceStore(client dynamodbiface.DynamoDBAPI, tablePrefix string) *DynamoDBInstanceStore {
	return &DynamoDBInstanceStore{
		client:    client,
		tableName: tablePrefix + "plugin_instances",
	}
}

// dynamoInstanceItem is the DynamoDB representation of a plugin instance.
// The sort key packs family and instance ID so both families share one
// owner-partitioned table without sharing a namespace.
type dynamoInstanceItem struct {
	OwnerID           string                 `dynamodbav:"OwnerID"`
	SK                string                 `dynamodbav:"SK"`
	InstanceID        string                 `dynamodbav:"InstanceID"`
	Family            string                 `dynamodbav:"Family"`
	Type              string                 `dynamodbav:"Type"`
	Name              string                 `dynamodbav:"Name"`
	Parameters        map[string]interface{} `dynamodbav:"Parameters"`
	DescriptorVersion string                 `dynamodbav:"DescriptorVersion"`
	CreatedAt         time.Time              `dynamodbav:"CreatedAt"`
}

func instanceSortKey(family plugins.Family, instanceID string) string {
	return string(family) + "#" + instanceID
}

func toInstanceItem(instance plugins.PluginInstance) dynamoInstanceItem {
	return dynamoInstanceItem{
		OwnerID:           instance.OwnerID,
		SK:                instanceSortKey(instance.Family, instance.ID),
		InstanceID:        instance.ID,
		Family:            string(instance.Family),
		Type:              instance.Type,
		Name:              instance.Name,
		Parameters:        instance.Parameters,
		DescriptorVersion: instance.DescriptorVersion,
		CreatedAt:         instance.CreatedAt,
	}
}

func (item dynamoInstanceItem) toInstance() plugins.PluginInstance {
	return plugins.PluginInstance{
		ID:                item.InstanceID,
		OwnerID:           item.OwnerID,
		Family:            plugins.Family(item.Family),
		Type:              item.Type,
		Name:              item.Name,
		Parameters:        item.Parameters,
		DescriptorVersion: item.DescriptorVersion,
		CreatedAt:         item.CreatedAt,
	}
}

// Initialize creates the instances table if it doesn't exist
func (s *DynamoDBInstanceStore) Initialize() error {
	return ensureTable(s.client, &dynamodb.CreateTableInput{
		TableName: aws.String(s.tableName),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("OwnerID"),
				AttributeType: aws.String("S"),
			},
			{
				AttributeName: aws.String("SK"),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("OwnerID"),
				KeyType:       aws.String("HASH"),
			},
			{
				AttributeName: aws.String("SK"),
				KeyType:       aws.String("RANGE"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	})
}

// SaveInstance persists a plugin instance
func (s *DynamoDBInstanceStore) SaveInstance(instance plugins.PluginInstance) error {
	av, err := dynamodbattribute.MarshalMap(toInstanceItem(instance))
	if err != nil {
		return fmt.Errorf("failed to marshal instance: %w", err)
	}

	_, err = s.client.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to save instance: %w", err)
	}

	return nil
}

// GetInstance retrieves a plugin instance
func (s *DynamoDBInstanceStore) GetInstance(ownerID string, family plugins.Family, instanceID string) (plugins.PluginInstance, error) {
	result, err := s.client.GetItem(&dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"OwnerID": {
				S: aws.String(ownerID),
			},
			"SK": {
				S: aws.String(instanceSortKey(family, instanceID)),
			},
		},
	})
	if err != nil {
		return plugins.PluginInstance{}, fmt.Errorf("failed to get instance: %w", err)
	}

	if result.Item == nil {
		return plugins.PluginInstance{}, ErrInstanceNotFound
	}

	var item dynamoInstanceItem
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return plugins.PluginInstance{}, fmt.Errorf("failed to unmarshal instance: %w", err)
	}

	return item.toInstance(), nil
}

// ListInstances returns all instances of a family for an owner in creation order
func (s *DynamoDBInstanceStore) ListInstances(ownerID string, family plugins.Family) ([]plugins.PluginInstance, error) {
	keyCond := expression.Key("OwnerID").Equal(expression.Value(ownerID)).
		And(expression.Key("SK").BeginsWith(string(family) + "#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(&dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	instances := make([]plugins.PluginInstance, 0, len(result.Items))
	for _, av := range result.Items {
		var item dynamoInstanceItem
		if err := dynamodbattribute.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
		}
		instances = append(instances, item.toInstance())
	}

	// Query returns sort-key order; callers expect creation order
	sort.Slice(instances, func(i, j int) bool {
		if instances[i].CreatedAt.Equal(instances[j].CreatedAt) {
			return instances[i].ID < instances[j].ID
		}
		return instances[i].CreatedAt.Before(instances[j].CreatedAt)
	})

	return instances, nil
}

// DeleteInstance removes a plugin instance
func (s *DynamoDBInstanceStore) DeleteInstance(ownerID string, family plugins.Family, instanceID string) error {
	_, err := s.client.DeleteItem(&dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"OwnerID": {
				S: aws.String(ownerID),
			},
			"SK": {
				S: aws.String(instanceSortKey(family, instanceID)),
			},
		},
		ConditionExpression: aws.String("attribute_exists(OwnerID) AND attribute_exists(SK)"),
	})

	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return ErrInstanceNotFound
		}
		return fmt.Errorf("failed to delete instance: %w", err)
	}

	return nil
}

// CountByName returns how many instances of a family carry the given name
func (s *DynamoDBInstanceStore) CountByName(ownerID string, family plugins.Family, name string) (int, error) {
	keyCond := expression.Key("OwnerID").Equal(expression.Value(ownerID)).
		And(expression.Key("SK").BeginsWith(string(family) + "#"))
	filter := expression.Name("Name").Equal(expression.Value(name))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return 0, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(&dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Select:                    aws.String("COUNT"),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count instances: %w", err)
	}

	return int(aws.Int64Value(result.Count)), nil
}

// DynamoDBSecretStore implements the SecretStore interface using DynamoDB
type DynamoDBSecretStore struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
}

// NewDynamoDBSecretStore creates a new DynamoDB secret store
func NewDynamoDBSecretStore(client dynamodbiface.DynamoDBAPI, tablePrefix string) *DynamoDBSecretStore {
	return &DynamoDBSecretStore{
		client:    client,
		tableName: tablePrefix + "secrets",
	}
}

// Initialize creates the secrets table if it doesn't exist
func (s *DynamoDBSecretStore) Initialize() error {
	return ensureTable(s.client, &dynamodb.CreateTableInput{
		TableName: aws.String(s.tableName),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("AccountID"),
				AttributeType: aws.String("S"),
			},
			{
				AttributeName: aws.String("Key"),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("AccountID"),
				KeyType:       aws.String("HASH"),
			},
			{
				AttributeName: aws.String("Key"),
				KeyType:       aws.String("RANGE"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	})
}

// SaveSecret persists a secret
func (s *DynamoDBSecretStore) SaveSecret(secret auth.Secret) error {
	av, err := dynamodbattribute.MarshalMap(secret)
	if err != nil {
		return fmt.Errorf("failed to marshal secret: %w", err)
	}

	_, err = s.client.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to save secret: %w", err)
	}

	return nil
}

// GetSecret retrieves a secret
func (s *DynamoDBSecretStore) GetSecret(accountID, key string) (auth.Secret, error) {
	result, err := s.client.GetItem(&dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"AccountID": {
				S: aws.String(accountID),
			},
			"Key": {
				S: aws.String(key),
			},
		},
	})
	if err != nil {
		return auth.Secret{}, fmt.Errorf("failed to get secret: %w", err)
	}

	if result.Item == nil {
		return auth.Secret{}, ErrSecretNotFound
	}

	var secret auth.Secret
	if err := dynamodbattribute.UnmarshalMap(result.Item, &secret); err != nil {
		return auth.Secret{}, fmt.Errorf("failed to unmarshal secret: %w", err)
	}

	return secret, nil
}

// ListSecrets returns all secrets for an account
func (s *DynamoDBSecretStore) ListSecrets(accountID string) ([]auth.Secret, error) {
	keyCond := expression.Key("AccountID").Equal(expression.Value(accountID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(&dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query secrets: %w", err)
	}

	secrets := make([]auth.Secret, 0, len(result.Items))
	for _, item := range result.Items {
		var secret auth.Secret
		if err := dynamodbattribute.UnmarshalMap(item, &secret); err != nil {
			return nil, fmt.Errorf("failed to unmarshal secret: %w", err)
		}
		secrets = append(secrets, secret)
	}

	return secrets, nil
}

// DeleteSecret removes a secret
func (s *DynamoDBSecretStore) DeleteSecret(accountID, key string) error {
	_, err := s.client.DeleteItem(&dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"AccountID": {
				S: aws.String(accountID),
			},
			"Key": {
				S: aws.String(key),
			},
		},
		ConditionExpression: aws.String("attribute_exists(AccountID) AND attribute_exists(#k)"),
		ExpressionAttributeNames: map[string]*string{
			"#k": aws.String("Key"),
		},
	})

	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return ErrSecretNotFound
		}
		return fmt.Errorf("failed to delete secret: %w", err)
	}

	return nil
}

// DynamoDBAccountStore implements the AccountStore interface using DynamoDB
type DynamoDBAccountStore struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
}

// NewDynamoDBAccountStore creates a new DynamoDB account store
func NewDynamoDBAccountStore(client dynamodbiface.DynamoDBAPI, tablePrefix string) *DynamoDBAccountStore {
	return &DynamoDBAccountStore{
		client:    client,
		tableName: tablePrefix + "accounts",
	}
}

// dynamoAccountItem is the DynamoDB representation of an account. Sensitive
// fields carry explicit attribute names because the auth.Account JSON tags
// hide them.
type dynamoAccountItem struct {
	ID           string    `dynamodbav:"ID"`
	Username     string    `dynamodbav:"Username"`
	PasswordHash string    `dynamodbav:"PasswordHash"`
	APIToken     string    `dynamodbav:"APIToken"`
	CreatedAt    time.Time `dynamodbav:"CreatedAt"`
	UpdatedAt    time.Time `dynamodbav:"UpdatedAt"`
}

func toAccountItem(account auth.Account) dynamoAccountItem {
	return dynamoAccountItem(account)
}

func (item dynamoAccountItem) toAccount() auth.Account {
	return auth.Account(item)
}

// Initialize creates the accounts table if it doesn't exist
func (s *DynamoDBAccountStore) Initialize() error {
	return ensureTable(s.client, &dynamodb.CreateTableInput{
		TableName: aws.String(s.tableName),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("ID"),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("ID"),
				KeyType:       aws.String("HASH"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	})
}

// SaveAccount persists an account
func (s *DynamoDBAccountStore) SaveAccount(account auth.Account) error {
	av, err := dynamodbattribute.MarshalMap(toAccountItem(account))
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	_, err = s.client.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}

// GetAccount retrieves an account
func (s *DynamoDBAccountStore) GetAccount(accountID string) (auth.Account, error) {
	result, err := s.client.GetItem(&dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"ID": {
				S: aws.String(accountID),
			},
		},
	})
	if err != nil {
		return auth.Account{}, fmt.Errorf("failed to get account: %w", err)
	}

	if result.Item == nil {
		return auth.Account{}, ErrAccountNotFound
	}

	var item dynamoAccountItem
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return auth.Account{}, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return item.toAccount(), nil
}

// GetAccountByUsername retrieves an account by username
func (s *DynamoDBAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	return s.findAccount("Username", username)
}

// GetAccountByToken retrieves an account by API token
func (s *DynamoDBAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	return s.findAccount("APIToken", token)
}

// findAccount scans for an account matching one attribute. Account tables
// stay small, so a filtered scan beats maintaining extra indexes.
func (s *DynamoDBAccountStore) findAccount(attribute, value string) (auth.Account, error) {
	filter := expression.Name(attribute).Equal(expression.Value(value))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return auth.Account{}, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Scan(&dynamodb.ScanInput{
		TableName:                 aws.String(s.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return auth.Account{}, fmt.Errorf("failed to scan accounts: %w", err)
	}

	if len(result.Items) == 0 {
		return auth.Account{}, ErrAccountNotFound
	}

	var item dynamoAccountItem
	if err := dynamodbattribute.UnmarshalMap(result.Items[0], &item); err != nil {
		return auth.Account{}, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return item.toAccount(), nil
}

// ListAccounts returns all accounts
func (s *DynamoDBAccountStore) ListAccounts() ([]auth.Account, error) {
	result, err := s.client.Scan(&dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan accounts: %w", err)
	}

	accounts := make([]auth.Account, 0, len(result.Items))
	for _, av := range result.Items {
		var item dynamoAccountItem
		if err := dynamodbattribute.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal account: %w", err)
		}
		accounts = append(accounts, item.toAccount())
	}

	sort.Slice(accounts, func(i, j int) bool {
		return strings.Compare(accounts[i].Username, accounts[j].Username) < 0
	})

	return accounts, nil
}

// DeleteAccount removes an account
func (s *DynamoDBAccountStore) DeleteAccount(accountID string) error {
	_, err := s.client.DeleteItem(&dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"ID": {
				S: aws.String(accountID),
			},
		},
		ConditionExpression: aws.String("attribute_exists(ID)"),
	})

	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to delete account: %w", err)
	}

	return nil
}
