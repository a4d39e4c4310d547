// Package cloudkv implements the cloud key-value storage strategy:
// table-per-aggregate in DynamoDB, keyed by id, with a configurable
// table-name prefix so one account can host multiple deployments.
package cloudkv

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hostfactory/aws-provider/pkg/infrastructure/repository"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/storage"
)

func init() {
	storage.Register("cloudkv", register)
}

func register(cfg map[string]any) (*storage.Registry, error) {
	prefix, _ := cfg["table_prefix"].(string)
	if prefix == "" {
		prefix = "hostfactory"
	}
	region, _ := cfg["region"].(string)
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("cloudkv storage: loading AWS config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg)
	return &storage.Registry{
		Strategy: "cloudkv",
		Requests: New(client, prefix+"-requests", func(r repository.RequestRecord) string { return r.RequestID }),
		Machines: New(client, prefix+"-machines", func(m repository.MachineRecord) string { return m.MachineID }),
		Templates: New(client, prefix+"-templates", func(t repository.TemplateRecord) string { return t.TemplateID }),
	}, nil
}

// Store is a generic per-aggregate DynamoDB-backed repository. Each
// item has a partition key "id" and a "data" attribute carrying the
// JSON-encoded record, mirroring the file/SQL strategies' shape.
type Store[T any] struct {
	client *dynamodb.Client
	table  string
	idOf   func(T) string
}

func New[T any](client *dynamodb.Client, table string, idOf func(T) string) *Store[T] {
	return &Store[T]{client: client, table: table, idOf: idOf}
}

func (s *Store[T]) Save(entity T) error {
	data, err := encode(entity)
	if err != nil {
		return err
	}
	ctx := context.Background()
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"id":   &types.AttributeValueMemberS{Value: s.idOf(entity)},
			"data": &types.AttributeValueMemberS{Value: data},
		},
	})
	return err
}

func (s *Store[T]) GetByID(id string) (T, bool, error) {
	var zero T
	ctx := context.Background()
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return zero, false, err
	}
	if out.Item == nil {
		return zero, false, nil
	}
	dataAttr, ok := out.Item["data"].(*types.AttributeValueMemberS)
	if !ok {
		return zero, false, fmt.Errorf("cloudkv: item %q missing data attribute", id)
	}
	v, err := decode[T](dataAttr.Value)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (s *Store[T]) FindAll() ([]T, error) {
	ctx := context.Background()
	var out []T
	var lastKey map[string]types.AttributeValue
	for {
		scanOut, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.table),
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range scanOut.Items {
			dataAttr, ok := item["data"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			v, err := decode[T](dataAttr.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		if scanOut.LastEvaluatedKey == nil {
			break
		}
		lastKey = scanOut.LastEvaluatedKey
	}
	return out, nil
}

func (s *Store[T]) FindBy(criteria func(T) bool) ([]T, error) {
	all, err := s.FindAll()
	if err != nil {
		return nil, err
	}
	filtered := make([]T, 0, len(all))
	for _, v := range all {
		if criteria(v) {
			filtered = append(filtered, v)
		}
	}
	return filtered, nil
}

func (s *Store[T]) Delete(id string) error {
	ctx := context.Background()
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	return err
}
