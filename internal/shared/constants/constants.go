package constants

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"

	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100

	HeaderAuthorization = "Authorization"
	HeaderXRequestID    = "X-Request-ID"

	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"

	// Gin context keys
	ContextKeyUserID    = "user_id"
	ContextKeyRole      = "user_role"
	ContextKeyRequestID = "request_id"

	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)
