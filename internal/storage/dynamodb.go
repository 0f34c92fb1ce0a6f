package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"github.com/thehypeloop/dialmate/backend/internal/types"
)

const activeSessionKey = "activeSession"

// DynamoDBStore implements Store using AWS DynamoDB
type DynamoDBStore struct {
	client *dynamodb.Client
	config DynamoConfig
	logger zerolog.Logger
}

// queueItem is the stored shape of one pending dial-queue row.
type queueItem struct {
	SessionID string `dynamodbav:"SessionID"`
	Position  int    `dynamodbav:"Position"`
	Name      string `dynamodbav:"Name"`
	Phone     string `dynamodbav:"Phone"`
}

// sessionItem is the stored shape of the web-session bridge marker.
type sessionItem struct {
	Key       string `dynamodbav:"Key"`
	SessionID string `dynamodbav:"SessionID"`
}

// NewDynamoDBStore creates a new DynamoDB store
func NewDynamoDBStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoDBStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == DynamoModeLocal {
		// For local mode, build the client directly without LoadDefaultConfig.
		// LoadDefaultConfig probes the EC2 IMDS endpoint which hangs on EC2
		// instances when static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoDBStore{
		client: client,
		config: cfg,
		logger: logger,
	}

	// Create tables in local mode
	if cfg.Mode == DynamoModeLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Msg("DynamoDB store initialized")

	return store, nil
}

func (s *DynamoDBStore) ReadContact(ctx context.Context, phone string) (*types.Contact, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.ContactsTable),
		Key: map[string]dbtypes.AttributeValue{
			"PhoneNumber": &dbtypes.AttributeValueMemberS{Value: phone},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read contact: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var contact types.Contact
	if err := attributevalue.UnmarshalMap(result.Item, &contact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contact: %w", err)
	}
	if contact.PhoneNumber == "" {
		// Older rows were keyed before the field existed; the key wins.
		contact.PhoneNumber = phone
	}
	return &contact, nil
}

func (s *DynamoDBStore) WriteContact(ctx context.Context, contact types.Contact) error {
	item, err := attributevalue.MarshalMap(contact)
	if err != nil {
		return fmt.Errorf("failed to marshal contact: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.ContactsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to write contact: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) ListContacts(ctx context.Context) ([]types.Contact, error) {
	var contacts []types.Contact
	var lastKey map[string]dbtypes.AttributeValue

	for {
		input := &dynamodb.ScanInput{
			TableName: aws.String(s.config.ContactsTable),
		}
		if lastKey != nil {
			input.ExclusiveStartKey = lastKey
		}

		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contacts: %w", err)
		}

		var page []types.Contact
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal contacts: %w", err)
		}
		contacts = append(contacts, page...)

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}

	return contacts, nil
}

func (s *DynamoDBStore) ReadActiveSession(ctx context.Context) (string, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.SessionsTable),
		Key: map[string]dbtypes.AttributeValue{
			"Key": &dbtypes.AttributeValueMemberS{Value: activeSessionKey},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to read active session: %w", err)
	}
	if result.Item == nil {
		return "", nil
	}

	var item sessionItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return "", fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return item.SessionID, nil
}

func (s *DynamoDBStore) ClearActiveSession(ctx context.Context) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.SessionsTable),
		Key: map[string]dbtypes.AttributeValue{
			"Key": &dbtypes.AttributeValueMemberS{Value: activeSessionKey},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to clear active session: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) FetchDialQueue(ctx context.Context, sessionID string) ([]types.QueueEntry, error) {
	keyCond := expression.Key("SessionID").Equal(expression.Value(sessionID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.DialQueueTable),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query dial queue: %w", err)
	}

	var items []queueItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dial queue: %w", err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })

	entries := make([]types.QueueEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, types.QueueEntry{Name: item.Name, Phone: item.Phone})
	}
	return entries, nil
}

func (s *DynamoDBStore) ClearDialQueue(ctx context.Context, sessionID string) error {
	keyCond := expression.Key("SessionID").Equal(expression.Value(sessionID))
	proj := expression.NamesList(expression.Name("SessionID"), expression.Name("Position"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithProjection(proj).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.DialQueueTable),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ProjectionExpression:      expr.Projection(),
	})
	if err != nil {
		return fmt.Errorf("failed to query dial queue keys: %w", err)
	}

	// Batch delete in groups of 25
	for i := 0; i < len(result.Items); i += 25 {
		end := i + 25
		if end > len(result.Items) {
			end = len(result.Items)
		}

		requests := make([]dbtypes.WriteRequest, 0, end-i)
		for _, item := range result.Items[i:end] {
			requests = append(requests, dbtypes.WriteRequest{
				DeleteRequest: &dbtypes.DeleteRequest{
					Key: map[string]dbtypes.AttributeValue{
						"SessionID": item["SessionID"],
						"Position":  item["Position"],
					},
				},
			})
		}

		_, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]dbtypes.WriteRequest{
				s.config.DialQueueTable: requests,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete dial queue batch: %w", err)
		}
	}

	s.logger.Debug().Str("session_id", sessionID).Int("deleted", len(result.Items)).Msg("dial queue cleared")
	return nil
}

// Watch is not supported for DynamoDB; change capture via streams is a
// deployment concern outside this process.
func (s *DynamoDBStore) Watch(_ context.Context) (<-chan types.Contact, error) {
	return nil, ErrWatchUnsupported
}

// NewStore creates the appropriate store based on configuration
func NewStore(ctx context.Context, logger zerolog.Logger) (Store, error) {
	cfg := LoadDynamoConfig()

	switch cfg.Mode {
	case DynamoModeLocal, DynamoModeAWS:
		return NewDynamoDBStore(ctx, cfg, logger)
	default:
		logger.Info().Msg("DynamoDB disabled (DYNAMO_MODE=none)")
		return NewNoopStore(), nil
	}
}
