package dynamo

// DynamoDB attribute names used in keys, indexes and update expressions.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldUserID     = "user_id"
	fieldEmail      = "email"
	fieldIsVerified = "is_verified"
	fieldUpdatedAt  = "updated_at"
	fieldTokenID    = "token_id"
	fieldToken      = "token"
	fieldOTP        = "otp"
	fieldType       = "type"
	fieldExpiresAt  = "expires_at"
	fieldPurgeAt    = "purge_at"
	fieldOwnerID    = "owner_id"

	// emailGuardPrefix keys the rows that reserve an address in the users
	// table. They carry no email attribute, so email-index never sees them.
	emailGuardPrefix = "email#"

	indexEmail = "email-index"
	indexToken = "token-index"
)
