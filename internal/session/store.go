package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrInvalidRole = errors.New("invalid message role")
)

type Session struct {
	ID        string `json:"id"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type Message struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionId"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt string          `json:"createdAt"`
}

// Store keeps chat history keyed by session id. It is passed to the handlers
// that need it; there is no process-wide session map.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return Store{db: db}
}

func (s Store) CreateSession(ctx context.Context) (Session, error) {
	query := `
INSERT INTO chat_sessions (id)
VALUES (?)
RETURNING id, created_at, updated_at;
`

	var out Session
	if err := s.db.QueryRowContext(ctx, query, uuid.NewString()).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return out, nil
}

func (s Store) GetSession(ctx context.Context, id string) (Session, error) {
	var out Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at FROM chat_sessions WHERE id = ? LIMIT 1;`,
		strings.TrimSpace(id),
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return out, nil
}

// AppendMessage stores metadata as JSON; nil metadata is stored as NULL.
func (s Store) AppendMessage(ctx context.Context, sessionID, role, content string, metadata any) (Message, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case "system", "user", "assistant":
	default:
		return Message{}, ErrInvalidRole
	}
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return Message{}, err
	}

	var encoded []byte
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return Message{}, fmt.Errorf("encode message metadata: %w", err)
		}
		encoded = raw
	}

	query := `
INSERT INTO chat_messages (id, session_id, role, content, metadata, seq)
VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_messages WHERE session_id = ?))
RETURNING id, session_id, role, content, COALESCE(metadata, ''), created_at;
`

	var (
		out      Message
		metaText string
	)
	if err := s.db.QueryRowContext(ctx, query, uuid.NewString(), sessionID, role, content, nullableText(encoded), sessionID).Scan(
		&out.ID,
		&out.SessionID,
		&out.Role,
		&out.Content,
		&metaText,
		&out.CreatedAt,
	); err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	if metaText != "" {
		out.Metadata = json.RawMessage(metaText)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = CURRENT_TIMESTAMP WHERE id = ?;`, sessionID); err != nil {
		return Message{}, fmt.Errorf("touch session: %w", err)
	}
	return out, nil
}

// RecentMessages returns the last limit messages in chronological order.
func (s Store) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, role, content, COALESCE(metadata, ''), created_at
FROM chat_messages
WHERE session_id = ?
ORDER BY seq DESC
LIMIT ?;
`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		var (
			message  Message
			metaText string
		)
		if err := rows.Scan(&message.ID, &message.SessionID, &message.Role, &message.Content, &metaText, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if metaText != "" {
			message.Metadata = json.RawMessage(metaText)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ResetSession clears the history but keeps the session id usable.
func (s Store) ResetSession(ctx context.Context, sessionID string) error {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?;`, sessionID); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = CURRENT_TIMESTAMP WHERE id = ?;`, sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func nullableText(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
