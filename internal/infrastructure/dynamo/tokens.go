package dynamo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-signup-verify/internal/domain"
)

// TokenRepo manages link and OTP verification tokens.
// PK: user_id, SK: token_id. Sparse GSI token-index covers link tokens only,
// since OTP rows carry no token attribute.
type TokenRepo struct {
	client    API
	tableName string
}

func NewTokenRepo(client API, tableName string) *TokenRepo {
	return &TokenRepo{client: client, tableName: tableName}
}

func (r *TokenRepo) Put(ctx context.Context, t *domain.VerificationToken) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("marshal verification token: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// GetByLinkToken finds a link token by its exact value.
func (r *TokenRepo) GetByLinkToken(ctx context.Context, token string) (*domain.VerificationToken, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexToken),
		KeyConditionExpression:    aws.String("#t = :v"),
		ExpressionAttributeNames:  map[string]string{"#t": fieldToken},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": strVal(token)},
	})
	if err != nil {
		return nil, err
	}
	for _, item := range out.Items {
		var t domain.VerificationToken
		if err := attributevalue.UnmarshalMap(item, &t); err != nil {
			return nil, err
		}
		if t.Type == domain.MethodLink {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("link token not found: %w", domain.ErrNotFound)
}

// GetOTP finds the user's OTP token whose code matches exactly.
func (r *TokenRepo) GetOTP(ctx context.Context, userID, code string) (*domain.VerificationToken, error) {
	items, err := r.queryUser(ctx, &dynamodb.QueryInput{
		FilterExpression:         aws.String("#ty = :otp AND #c = :code"),
		ExpressionAttributeNames: map[string]string{"#ty": fieldType, "#c": fieldOTP},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":otp":  strVal(string(domain.MethodOTP)),
			":code": strVal(code),
		},
	}, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("otp not found: %w", domain.ErrNotFound)
	}
	var t domain.VerificationToken
	if err := attributevalue.UnmarshalMap(items[0], &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TokenRepo) Delete(ctx context.Context, userID, tokenID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey(fieldUserID, userID, fieldTokenID, tokenID),
	})
	return err
}

// DeleteByUser removes every token owned by userID. It keeps going past
// individual failures and returns the first one.
func (r *TokenRepo) DeleteByUser(ctx context.Context, userID string) error {
	items, err := r.queryUser(ctx, &dynamodb.QueryInput{
		ProjectionExpression:     aws.String("#pk, #sk"),
		ExpressionAttributeNames: map[string]string{"#sk": fieldTokenID},
	}, userID)
	if err != nil {
		return err
	}
	var firstErr error
	for _, item := range items {
		tidAttr, ok := item[fieldTokenID].(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		if err := r.Delete(ctx, userID, tidAttr.Value); err != nil {
			slog.Warn("failed to delete verification token", "token_id", tidAttr.Value, "user_id", userID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// queryUser runs a partition query on user_id, following pagination.
// The caller's input supplies filters and projections; the key condition
// and table name are filled in here.
func (r *TokenRepo) queryUser(ctx context.Context, in *dynamodb.QueryInput, userID string) ([]map[string]types.AttributeValue, error) {
	in.TableName = aws.String(r.tableName)
	in.KeyConditionExpression = aws.String("#pk = :uid")
	in.ConsistentRead = aws.Bool(true)
	if in.ExpressionAttributeNames == nil {
		in.ExpressionAttributeNames = map[string]string{}
	}
	in.ExpressionAttributeNames["#pk"] = fieldUserID
	if in.ExpressionAttributeValues == nil {
		in.ExpressionAttributeValues = map[string]types.AttributeValue{}
	}
	in.ExpressionAttributeValues[":uid"] = strVal(userID)

	var items []map[string]types.AttributeValue
	for {
		out, err := r.client.Query(ctx, in)
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}
