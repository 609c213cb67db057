package conversation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"support-chat-backend/internal/database"
	"support-chat-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	ErrNotFound = errors.New("conversation repository: not found")
	ErrConflict = errors.New("conversation repository: conflicting write")
)

type Repository interface {
	CreateConversation(ctx context.Context, conversation model.ConversationItem) error
	GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error)
	ListConversations(ctx context.Context, limit int) ([]model.ConversationItem, error)
	AssignAgent(ctx context.Context, conversationID, agentID, updatedAt string) (model.ConversationItem, error)
	UpdateConversationOnMessage(ctx context.Context, conversationID string, status model.ConversationStatus, preview, updatedAt string) error
	CloseConversation(ctx context.Context, conversationID, updatedAt string) (model.ConversationItem, error)
	CreateMessage(ctx context.Context, message model.MessageItem) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]model.MessageItem, error)
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func conversationKey(conversationID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"conversationId": &types.AttributeValueMemberS{Value: conversationID},
	}
}

func (r *DynamoRepository) CreateConversation(ctx context.Context, conversation model.ConversationItem) error {
	return r.db.Client.PutItem(ctx, model.ConversationsTable, conversation)
}

func (r *DynamoRepository) GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error) {
	var conversation model.ConversationItem
	err := r.db.Client.GetItem(ctx, model.ConversationsTable, conversationKey(conversationID), &conversation)
	if err != nil {
		if isNotFound(err) {
			return model.ConversationItem{}, ErrNotFound
		}
		return model.ConversationItem{}, err
	}
	return conversation, nil
}

func (r *DynamoRepository) ListConversations(ctx context.Context, limit int) ([]model.ConversationItem, error) {
	items, err := r.db.Client.ScanItems(ctx, model.ConversationsTable, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	conversations := make([]model.ConversationItem, 0, len(items))
	for _, item := range items {
		var conversation model.ConversationItem
		if err := attributevalue.UnmarshalMap(item, &conversation); err != nil {
			return nil, err
		}
		conversations = append(conversations, conversation)
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt > conversations[j].UpdatedAt
	})

	if limit > 0 && len(conversations) > limit {
		conversations = conversations[:limit]
	}

	return conversations, nil
}

// AssignAgent is the single-writer compare-and-set for the join race: the
// update only succeeds while the conversation is still waiting, so exactly
// one of two racing agents wins. A conversation that regressed to waiting
// after an earlier assignment stays claimable; the winning agent replaces
// the previous assignee.
func (r *DynamoRepository) AssignAgent(ctx context.Context, conversationID, agentID, updatedAt string) (model.ConversationItem, error) {
	var updated model.ConversationItem
	cond := "#status = :waiting"
	err := r.db.Client.UpdateItem(
		ctx,
		model.ConversationsTable,
		conversationKey(conversationID),
		"SET #status = :active, assignedAgentId = :agent, updatedAt = :ts",
		aws.String(cond),
		map[string]types.AttributeValue{
			":waiting": &types.AttributeValueMemberS{Value: string(model.ConversationStatusWaiting)},
			":active":  &types.AttributeValueMemberS{Value: string(model.ConversationStatusActive)},
			":agent":   &types.AttributeValueMemberS{Value: agentID},
			":ts":      &types.AttributeValueMemberS{Value: updatedAt},
		},
		map[string]string{
			"#status": "status",
		},
		&updated,
	)
	if err != nil {
		if errors.Is(err, database.ErrConditionFailed) {
			return model.ConversationItem{}, ErrConflict
		}
		if isNotFound(err) {
			return model.ConversationItem{}, ErrNotFound
		}
		return model.ConversationItem{}, err
	}
	return updated, nil
}

func (r *DynamoRepository) UpdateConversationOnMessage(ctx context.Context, conversationID string, status model.ConversationStatus, preview, updatedAt string) error {
	err := r.db.Client.UpdateItem(
		ctx,
		model.ConversationsTable,
		conversationKey(conversationID),
		"SET #status = :status, lastMessagePreview = :preview, updatedAt = :ts",
		nil,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(status)},
			":preview": &types.AttributeValueMemberS{Value: preview},
			":ts":      &types.AttributeValueMemberS{Value: updatedAt},
		},
		map[string]string{
			"#status": "status",
		},
		nil,
	)
	if err != nil && isNotFound(err) {
		return ErrNotFound
	}
	return err
}

func (r *DynamoRepository) CloseConversation(ctx context.Context, conversationID, updatedAt string) (model.ConversationItem, error) {
	var closed model.ConversationItem
	cond := "attribute_exists(conversationId) AND #status <> :closed"
	err := r.db.Client.UpdateItem(
		ctx,
		model.ConversationsTable,
		conversationKey(conversationID),
		"SET #status = :closed, updatedAt = :ts",
		aws.String(cond),
		map[string]types.AttributeValue{
			":closed": &types.AttributeValueMemberS{Value: string(model.ConversationStatusClosed)},
			":ts":     &types.AttributeValueMemberS{Value: updatedAt},
		},
		map[string]string{
			"#status": "status",
		},
		&closed,
	)
	if err != nil {
		if errors.Is(err, database.ErrConditionFailed) {
			// Either the item is missing or it is already closed; a read
			// disambiguates for the caller.
			if _, getErr := r.GetConversation(ctx, conversationID); getErr != nil {
				return model.ConversationItem{}, getErr
			}
			return model.ConversationItem{}, ErrConflict
		}
		return model.ConversationItem{}, err
	}
	return closed, nil
}

func (r *DynamoRepository) CreateMessage(ctx context.Context, message model.MessageItem) error {
	return r.db.Client.PutItem(ctx, model.MessagesTable, message)
}

func (r *DynamoRepository) ListMessages(ctx context.Context, conversationID string, limit int) ([]model.MessageItem, error) {
	scanForward := true
	items, err := r.db.Client.QueryItems(
		ctx,
		model.MessagesTable,
		aws.String("byConversation"),
		"conversationId = :conversationId",
		map[string]types.AttributeValue{
			":conversationId": &types.AttributeValueMemberS{Value: conversationID},
		},
		nil,
		&scanForward,
	)
	if err != nil && !isIndexNotFound(err) {
		return nil, err
	}

	if (err != nil && isIndexNotFound(err)) || items == nil {
		filter := "conversationId = :conversationId"
		items, err = r.db.Client.ScanItems(
			ctx,
			model.MessagesTable,
			aws.String(filter),
			map[string]types.AttributeValue{
				":conversationId": &types.AttributeValueMemberS{Value: conversationID},
			},
			nil,
		)
		if err != nil {
			return nil, err
		}
	}

	messages := make([]model.MessageItem, 0, len(items))
	for _, item := range items {
		var message model.MessageItem
		if err := attributevalue.UnmarshalMap(item, &message); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	sort.Slice(messages, func(i, j int) bool {
		ti := parseTime(messages[i].CreatedAt)
		tj := parseTime(messages[j].CreatedAt)
		if ti.Equal(tj) {
			return messages[i].MessageID < messages[j].MessageID
		}
		return ti.Before(tj)
	})

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	return messages, nil
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "item not found")
}

func isIndexNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "index") && strings.Contains(msg, "not") && strings.Contains(msg, "found")
}

func parseTime(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}
	}
	return t
}
