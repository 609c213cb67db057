package model

const (
	UsersTable         = "Users"
	ConversationsTable = "Conversations"
	MessagesTable      = "Messages"
)

type UserItem struct {
	UserID       string `dynamodbav:"userId"`
	Email        string `dynamodbav:"email"`
	Name         string `dynamodbav:"name"`
	Role         string `dynamodbav:"role"`
	Status       string `dynamodbav:"status"`
	PasswordHash string `dynamodbav:"passwordHash"`
	AvatarURL    string `dynamodbav:"avatarUrl,omitempty"`
	CreatedAt    string `dynamodbav:"createdAt"`
}

const (
	UserRoleAdmin    = "admin"
	UserRoleCustomer = "customer"

	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)
