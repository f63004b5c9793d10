// Package repository persists finalized inspection rows. The row layout
// [date, unit, defect, company, photo link] is the durable contract shared
// by every store.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"inspection-bot/internal/domain"
)

const (
	pkPrefixSheet = "SHEET#"
	skPrefixRow   = "ROW#"
	maxQueryPages = 1000

	// sortKeyLayout is fixed width so that keys sort lexically in time order.
	sortKeyLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// dynamodbAPI is the part of *dynamodb.Client the row store uses.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// RowStore keeps each sheet as one DynamoDB partition; rows sort by the
// time they were appended.
type RowStore struct {
	api       dynamodbAPI
	tableName string
}

var (
	newRowID = func() string { return uuid.NewString() }
	nowUTC   = func() time.Time { return time.Now().UTC() }
)

func NewRowStore(api dynamodbAPI, tableName string) (*RowStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &RowStore{api: api, tableName: tableName}, nil
}

func sheetPK(sheet string) string {
	return pkPrefixSheet + sheet
}

func rowSK(ts time.Time, id string) string {
	return skPrefixRow + ts.UTC().Format(sortKeyLayout) + "#" + id
}

func (s *RowStore) AppendRow(ctx context.Context, sheet string, row domain.Row) error {
	if strings.TrimSpace(sheet) == "" {
		return errors.New("repository: AppendRow: sheet is required")
	}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                rowItem(sheet, rowSK(nowUTC(), newRowID()), row),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendRow: %w", err)
	}
	return nil
}

// ReadAllRows returns every row of a sheet in append order.
func (s *RowStore) ReadAllRows(ctx context.Context, sheet string) ([]domain.Row, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sheetPK(sheet)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixRow},
		},
		ScanIndexForward: aws.Bool(true),
	}

	var rows []domain.Row
	for page := 0; page < maxQueryPages; page++ {
		out, err := s.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: ReadAllRows query: %w", err)
		}
		if out == nil {
			break
		}
		for _, item := range out.Items {
			row, err := itemToRow(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ReadAllRows unmarshal: %w", err)
			}
			rows = append(rows, row)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return rows, nil
}

func rowItem(sheet, sk string, row domain.Row) map[string]types.AttributeValue {
	cols := row.Columns()
	list := make([]types.AttributeValue, 0, len(cols))
	for _, c := range cols {
		list = append(list, &types.AttributeValueMemberS{Value: c})
	}
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: sheetPK(sheet)},
		"SK":          &types.AttributeValueMemberS{Value: sk},
		"columns":     &types.AttributeValueMemberL{Value: list},
		"unitLabel":   &types.AttributeValueMemberS{Value: row.UnitLabel},
		"companyName": &types.AttributeValueMemberS{Value: row.CompanyName},
	}
}

// itemToRow reads the ordered columns list; unitLabel and companyName are
// only denormalized copies for ad-hoc queries.
func itemToRow(item map[string]types.AttributeValue) (domain.Row, error) {
	v, ok := item["columns"]
	if !ok {
		return domain.Row{}, errors.New("repository: missing attribute \"columns\"")
	}
	l, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return domain.Row{}, errors.New("repository: attribute \"columns\" is not a list")
	}
	cols := make([]string, 0, len(l.Value))
	for i, av := range l.Value {
		s, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return domain.Row{}, fmt.Errorf("repository: column %d is not a string", i)
		}
		cols = append(cols, s.Value)
	}
	return domain.RowFromColumns(cols), nil
}
