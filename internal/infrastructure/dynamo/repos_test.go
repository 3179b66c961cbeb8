package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-signup-verify/internal/config"
	"github.com/go-signup-verify/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAPI struct{ mock.Mock }

func (m *mockAPI) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.PutItemOutput)
	return out, args.Error(1)
}
func (m *mockAPI) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}
func (m *mockAPI) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}
func (m *mockAPI) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.UpdateItemOutput)
	return out, args.Error(1)
}
func (m *mockAPI) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.TransactWriteItemsOutput)
	return out, args.Error(1)
}
func (m *mockAPI) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.DeleteItemOutput)
	return out, args.Error(1)
}

func marshal(t *testing.T, v interface{}) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	return item
}

// --- users ---

func TestUserRepo_Create_WritesUserAndEmailGuardTogether(t *testing.T) {
	api := &mockAPI{}
	repo := NewUserRepo(api, "users")
	u := &domain.User{UserID: "u1", Email: "ann@example.com", PasswordHash: "hash"}

	api.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		if len(in.TransactItems) != 2 {
			return false
		}
		user, guard := in.TransactItems[0].Put, in.TransactItems[1].Put
		hash, ok := user.Item["password_hash"].(*types.AttributeValueMemberS)
		key, _ := guard.Item[fieldUserID].(*types.AttributeValueMemberS)
		owner, _ := guard.Item[fieldOwnerID].(*types.AttributeValueMemberS)
		_, guardHasEmail := guard.Item[fieldEmail]
		return aws.ToString(user.TableName) == "users" && aws.ToString(guard.TableName) == "users" &&
			aws.ToString(user.ConditionExpression) == "attribute_not_exists(#id)" &&
			aws.ToString(guard.ConditionExpression) == "attribute_not_exists(#id)" &&
			ok && hash.Value == "hash" &&
			key != nil && key.Value == "email#ann@example.com" &&
			owner != nil && owner.Value == "u1" && !guardHasEmail
	})).Return(&dynamodb.TransactWriteItemsOutput{}, nil)

	require.NoError(t, repo.Create(context.Background(), u))
	api.AssertExpectations(t)
}

func TestUserRepo_Create_TakenEmail_ReturnsConflict(t *testing.T) {
	api := &mockAPI{}
	repo := NewUserRepo(api, "users")
	api.On("TransactWriteItems", mock.Anything, mock.Anything).
		Return(nil, &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{
				{Code: aws.String("None")},
				{Code: aws.String("ConditionalCheckFailed")},
			},
		})

	err := repo.Create(context.Background(), &domain.User{UserID: "u2", Email: "ann@example.com"})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), "email already registered")
}

func TestUserRepo_Create_TakenUserID_ReturnsConflict(t *testing.T) {
	api := &mockAPI{}
	repo := NewUserRepo(api, "users")
	api.On("TransactWriteItems", mock.Anything, mock.Anything).
		Return(nil, &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{
				{Code: aws.String("ConditionalCheckFailed")},
				{Code: aws.String("None")},
			},
		})

	err := repo.Create(context.Background(), &domain.User{UserID: "u1", Email: "bo@example.com"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestUserRepo_Create_OtherCancellation_IsNotConflict(t *testing.T) {
	api := &mockAPI{}
	repo := NewUserRepo(api, "users")
	api.On("TransactWriteItems", mock.Anything, mock.Anything).
		Return(nil, &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{{Code: aws.String("ThrottlingError")}},
		})

	err := repo.Create(context.Background(), &domain.User{UserID: "u1", Email: "bo@example.com"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrConflict)
}

func TestUserRepo_Get_MissingItem_ReturnsNotFound(t *testing.T) {
	api := &mockAPI{}
	repo := NewUserRepo(api, "users")
	api.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserRepo_GetByEmail_QueriesIndex(t *testing.T) {
	api := &mockAPI{}
	repo := NewUserRepo(api, "users")
	want := domain.User{UserID: "u1", Name: "Ann", Email: "ann@example.com"}

	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		v, ok := in.ExpressionAttributeValues[":v"].(*types.AttributeValueMemberS)
		return aws.ToString(in.IndexName) == indexEmail && ok && v.Value == "ann@example.com"
	})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{marshal(t, want)}}, nil)

	got, err := repo.GetByEmail(context.Background(), "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "Ann", got.Name)
}

func TestUserRepo_GetByEmail_NoItems_ReturnsNotFound(t *testing.T) {
	api := &mockAPI{}
	repo := NewUserRepo(api, "users")
	api.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil)

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserRepo_MarkVerified_SetsFlagAndTimestamp(t *testing.T) {
	api := &mockAPI{}
	repo := NewUserRepo(api, "users")
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		// is_verified < updated_at after sorting
		flag, ok := in.ExpressionAttributeValues[":v0"].(*types.AttributeValueMemberBOOL)
		var stamp time.Time
		_ = attributevalue.Unmarshal(in.ExpressionAttributeValues[":v1"], &stamp)
		return in.ExpressionAttributeNames["#f0"] == fieldIsVerified &&
			in.ExpressionAttributeNames["#f1"] == fieldUpdatedAt &&
			ok && flag.Value && stamp.Equal(at) &&
			aws.ToString(in.ConditionExpression) == "attribute_exists(#pk)"
	})).Return(&dynamodb.UpdateItemOutput{}, nil)

	require.NoError(t, repo.MarkVerified(context.Background(), "u1", at))
	api.AssertExpectations(t)
}

func TestUserRepo_MarkVerified_MissingUser_ReturnsNotFound(t *testing.T) {
	api := &mockAPI{}
	repo := NewUserRepo(api, "users")
	api.On("UpdateItem", mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{})

	err := repo.MarkVerified(context.Background(), "gone", time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// --- tokens ---

func TestTokenRepo_Put_OmitsUnusedCodeField(t *testing.T) {
	api := &mockAPI{}
	repo := NewTokenRepo(api, "verification_tokens")
	tok := &domain.VerificationToken{
		TokenID: "t1", UserID: "u1", Type: domain.MethodOTP, OTP: "012345",
		ExpiresAt: time.Unix(1700000000, 0), PurgeAt: time.Unix(1700086400, 0),
		CreatedAt: time.Unix(1699997300, 0),
	}

	api.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		_, hasToken := in.Item[fieldToken]
		exp, ok := in.Item[fieldExpiresAt].(*types.AttributeValueMemberN)
		purge, pok := in.Item[fieldPurgeAt].(*types.AttributeValueMemberN)
		return !hasToken && ok && exp.Value == "1700000000" && pok && purge.Value == "1700086400"
	})).Return(&dynamodb.PutItemOutput{}, nil)

	require.NoError(t, repo.Put(context.Background(), tok))
	api.AssertExpectations(t)
}

func TestTokenRepo_GetByLinkToken_Found(t *testing.T) {
	api := &mockAPI{}
	repo := NewTokenRepo(api, "verification_tokens")
	stored := domain.VerificationToken{TokenID: "t1", UserID: "u1", Type: domain.MethodLink, Token: "abc"}

	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return aws.ToString(in.IndexName) == indexToken
	})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{marshal(t, stored)}}, nil)

	got, err := repo.GetByLinkToken(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.TokenID)
	assert.Equal(t, "u1", got.UserID)
}

func TestTokenRepo_GetByLinkToken_Absent_ReturnsNotFound(t *testing.T) {
	api := &mockAPI{}
	repo := NewTokenRepo(api, "verification_tokens")
	api.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil)

	_, err := repo.GetByLinkToken(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTokenRepo_GetOTP_FiltersByTypeAndCode(t *testing.T) {
	api := &mockAPI{}
	repo := NewTokenRepo(api, "verification_tokens")
	stored := domain.VerificationToken{TokenID: "t2", UserID: "u1", Type: domain.MethodOTP, OTP: "482913"}

	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		code, ok := in.ExpressionAttributeValues[":code"].(*types.AttributeValueMemberS)
		uid, _ := in.ExpressionAttributeValues[":uid"].(*types.AttributeValueMemberS)
		return ok && code.Value == "482913" && uid != nil && uid.Value == "u1"
	})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{marshal(t, stored)}}, nil)

	got, err := repo.GetOTP(context.Background(), "u1", "482913")
	require.NoError(t, err)
	assert.Equal(t, "t2", got.TokenID)
}

func TestTokenRepo_GetOTP_NoMatch_ReturnsNotFound(t *testing.T) {
	api := &mockAPI{}
	repo := NewTokenRepo(api, "verification_tokens")
	api.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil)

	_, err := repo.GetOTP(context.Background(), "u1", "000000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTokenRepo_DeleteByUser_FollowsPagesAndReturnsFirstError(t *testing.T) {
	api := &mockAPI{}
	repo := NewTokenRepo(api, "verification_tokens")
	key := func(id string) map[string]types.AttributeValue {
		return compositeKey(fieldUserID, "u1", fieldTokenID, id)
	}

	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.ExclusiveStartKey == nil
	})).Return(&dynamodb.QueryOutput{
		Items:            []map[string]types.AttributeValue{key("t1")},
		LastEvaluatedKey: key("t1"),
	}, nil).Once()
	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.ExclusiveStartKey != nil
	})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{key("t2")}}, nil).Once()

	deleteFailed := errors.New("throttled")
	api.On("DeleteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.DeleteItemInput) bool {
		return in.Key[fieldTokenID].(*types.AttributeValueMemberS).Value == "t1"
	})).Return(nil, deleteFailed)
	api.On("DeleteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.DeleteItemInput) bool {
		return in.Key[fieldTokenID].(*types.AttributeValueMemberS).Value == "t2"
	})).Return(&dynamodb.DeleteItemOutput{}, nil)

	err := repo.DeleteByUser(context.Background(), "u1")
	assert.ErrorIs(t, err, deleteFailed)
	api.AssertNumberOfCalls(t, "DeleteItem", 2)
}

// --- bootstrap ---

type mockAdmin struct{ mock.Mock }

func (m *mockAdmin) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	args := m.Called(ctx, aws.ToString(in.TableName))
	out, _ := args.Get(0).(*dynamodb.CreateTableOutput)
	return out, args.Error(1)
}
func (m *mockAdmin) UpdateTimeToLive(ctx context.Context, in *dynamodb.UpdateTimeToLiveInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	args := m.Called(ctx, aws.ToString(in.TableName), aws.ToString(in.TimeToLiveSpecification.AttributeName))
	out, _ := args.Get(0).(*dynamodb.UpdateTimeToLiveOutput)
	return out, args.Error(1)
}

func TestBootstrap_CreatesTablesAndEnablesTTLOnPurgeAt(t *testing.T) {
	admin := &mockAdmin{}
	admin.On("CreateTable", mock.Anything, "users").Return(&dynamodb.CreateTableOutput{}, nil)
	admin.On("CreateTable", mock.Anything, "verification_tokens").
		Return(nil, &types.ResourceInUseException{})
	admin.On("UpdateTimeToLive", mock.Anything, "verification_tokens", fieldPurgeAt).
		Return(&dynamodb.UpdateTimeToLiveOutput{}, nil)

	Bootstrap(context.Background(), admin, configTables())
	admin.AssertExpectations(t)
}

func configTables() config.DynamoTables {
	return config.DynamoTables{Users: "users", VerificationTokens: "verification_tokens"}
}
