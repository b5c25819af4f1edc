package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store"
)

type PostgresStore struct {
	db *sql.DB
}

var openDB = sql.Open

func New(conn string) (*PostgresStore, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := verifySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func verifySchema(ctx context.Context, db *sql.DB) error {
	required := []string{
		"profiles",
		"conversations",
		"messages",
		"conversation_events",
		"conversation_event_sequences",
		"workflows",
		"workflow_runs",
		"integrations",
	}
	for _, table := range required {
		var regclass sql.NullString
		if err := db.QueryRowContext(ctx, "SELECT to_regclass($1)", fmt.Sprintf("public.%s", table)).Scan(&regclass); err != nil {
			return err
		}
		if !regclass.Valid {
			return fmt.Errorf("database schema missing: %s table not found (run carbonn migrate up)", table)
		}
	}
	return nil
}

func (p *PostgresStore) UpsertProfile(ctx context.Context, profile store.Profile) error {
	const query = `
		INSERT INTO profiles (id, email, full_name, avatar_url, provider, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			avatar_url = EXCLUDED.avatar_url,
			provider = EXCLUDED.provider,
			updated_at = EXCLUDED.updated_at
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		profile.ID,
		profile.Email,
		nullString(profile.FullName),
		nullString(profile.AvatarURL),
		profile.Provider,
		parseTimestampValue(profile.CreatedAt),
		parseTimestampValue(profile.UpdatedAt),
	)
	return err
}

func (p *PostgresStore) GetProfile(ctx context.Context, userID string) (*store.Profile, error) {
	const query = `
		SELECT id, email, full_name, avatar_url, provider, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`
	var (
		profile   store.Profile
		fullName  sql.NullString
		avatarURL sql.NullString
		createdAt time.Time
		updatedAt time.Time
	)
	if err := p.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.ID,
		&profile.Email,
		&fullName,
		&avatarURL,
		&profile.Provider,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	profile.FullName = fullName.String
	profile.AvatarURL = avatarURL.String
	profile.CreatedAt = formatTimestamp(createdAt)
	profile.UpdatedAt = formatTimestamp(updatedAt)
	return &profile, nil
}

func (p *PostgresStore) CreateConversation(ctx context.Context, conversation store.Conversation) error {
	const query = `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		conversation.ID,
		conversation.UserID,
		conversation.Title,
		parseTimestampValue(conversation.CreatedAt),
		parseTimestampValue(conversation.UpdatedAt),
	)
	return err
}

func (p *PostgresStore) GetConversation(ctx context.Context, conversationID string) (*store.Conversation, error) {
	const query = `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`
	var (
		conversation store.Conversation
		createdAt    time.Time
		updatedAt    time.Time
	)
	if err := p.db.QueryRowContext(ctx, query, conversationID).Scan(
		&conversation.ID,
		&conversation.UserID,
		&conversation.Title,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	conversation.CreatedAt = formatTimestamp(createdAt)
	conversation.UpdatedAt = formatTimestamp(updatedAt)
	return &conversation, nil
}

func (p *PostgresStore) ListConversations(ctx context.Context, userID string) ([]store.ConversationSummary, error) {
	const query = `
		SELECT
			c.id,
			c.user_id,
			COALESCE(NULLIF(c.title, ''), first_message.content, '') AS title,
			c.created_at,
			c.updated_at,
			COUNT(m.id) AS message_count
		FROM conversations c
		LEFT JOIN LATERAL (
			SELECT content
			FROM messages
			WHERE conversation_id = c.id AND role = 'user'
			ORDER BY sequence ASC
			LIMIT 1
		) first_message ON true
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE ($1 = '' OR c.user_id = $1)
		GROUP BY c.id, c.user_id, c.title, c.created_at, c.updated_at, first_message.content
		ORDER BY c.updated_at DESC
	`
	rows, err := p.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.ConversationSummary{}
	for rows.Next() {
		var createdAt time.Time
		var updatedAt time.Time
		var summary store.ConversationSummary
		if err := rows.Scan(
			&summary.ID,
			&summary.UserID,
			&summary.Title,
			&createdAt,
			&updatedAt,
			&summary.MessageCount,
		); err != nil {
			return nil, err
		}
		summary.CreatedAt = formatTimestamp(createdAt)
		summary.UpdatedAt = formatTimestamp(updatedAt)
		results = append(results, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

const insertMessageQuery = `
	INSERT INTO messages (id, conversation_id, role, content, sequence, created_at, metadata)
	SELECT $1, $2, $3, $4, COALESCE(MAX(sequence), 0) + 1, $5, $6
	FROM messages
	WHERE conversation_id = $2
`

func (p *PostgresStore) AddMessage(ctx context.Context, msg store.Message) error {
	encoded, err := encodeJSONMap(msg.Metadata)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, insertMessageQuery, msg.ID, msg.ConversationID, msg.Role, msg.Content, parseTimestampValue(msg.CreatedAt), encoded)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, "UPDATE conversations SET updated_at = now() WHERE id = $1", msg.ConversationID)
	return err
}

func (p *PostgresStore) UpdateMessage(ctx context.Context, msg store.Message) error {
	encoded, err := encodeJSONMap(msg.Metadata)
	if err != nil {
		return err
	}
	result, err := p.db.ExecContext(ctx, "UPDATE messages SET content = $2, metadata = $3 WHERE id = $1", msg.ID, msg.Content, encoded)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	const query = `
		SELECT id, conversation_id, role, content, sequence, created_at, metadata
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sequence ASC
	`
	rows, err := p.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.Message{}
	for rows.Next() {
		var createdAt time.Time
		var metadataBytes []byte
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.Sequence, &createdAt, &metadataBytes); err != nil {
			return nil, err
		}
		msg.CreatedAt = formatTimestamp(createdAt)
		if len(metadataBytes) > 0 {
			metadata := map[string]any{}
			if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
				return nil, err
			}
			msg.Metadata = metadata
		} else {
			msg.Metadata = map[string]any{}
		}
		results = append(results, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// AppendEvent stores the event and projects any message snapshot it carries
// in the same transaction.
func (p *PostgresStore) AppendEvent(ctx context.Context, event store.Event) (err error) {
	if err := store.CheckEventMessage(event); err != nil {
		return err
	}
	event.Type = store.NormalizeEventType(event.Type)
	encoded, err := encodeJSONMap(event.Payload)
	if err != nil {
		return err
	}
	timestamp := event.Timestamp
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	timestampValue := parseTimestampValue(timestamp)
	traceID := strings.TrimSpace(event.TraceID)
	var traceIDValue any
	if traceID == "" {
		traceIDValue = nil
	} else if _, err := uuid.Parse(traceID); err != nil {
		traceIDValue = nil
	} else {
		traceIDValue = traceID
	}
	const query = `
		INSERT INTO conversation_events (conversation_id, seq, type, timestamp, source, trace_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, query, event.ConversationID, event.Seq, event.Type, timestampValue, event.Source, traceIDValue, encoded); err != nil {
		return err
	}
	if msg, ok := store.BuildMessageFromEvent(event); ok {
		if err = upsertMessageTx(ctx, tx, msg); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, "UPDATE conversations SET updated_at = $2 WHERE id = $1", msg.ConversationID, timestampValue); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

func upsertMessageTx(ctx context.Context, tx *sql.Tx, msg store.Message) error {
	encoded, err := encodeJSONMap(msg.Metadata)
	if err != nil {
		return err
	}
	query := insertMessageQuery + `
	ON CONFLICT (id)
	DO UPDATE SET
		content = EXCLUDED.content,
		metadata = EXCLUDED.metadata
	WHERE messages.conversation_id = EXCLUDED.conversation_id
	`
	result, err := tx.ExecContext(ctx, query, msg.ID, msg.ConversationID, msg.Role, msg.Content, parseTimestampValue(msg.CreatedAt), encoded)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrConversationMismatch
	}
	return nil
}

func (p *PostgresStore) ListEvents(ctx context.Context, conversationID string, afterSeq int64) ([]store.Event, error) {
	const query = `
		SELECT conversation_id, seq, type, timestamp, source, trace_id, payload
		FROM conversation_events
		WHERE conversation_id = $1 AND seq > $2
		ORDER BY seq ASC
	`
	rows, err := p.db.QueryContext(ctx, query, conversationID, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.Event{}
	for rows.Next() {
		var payloadBytes []byte
		var timestamp time.Time
		var traceID sql.NullString
		var event store.Event
		if err := rows.Scan(&event.ConversationID, &event.Seq, &event.Type, &timestamp, &event.Source, &traceID, &payloadBytes); err != nil {
			return nil, err
		}
		event.Timestamp = formatTimestamp(timestamp)
		if traceID.Valid {
			event.TraceID = traceID.String
		}
		if len(payloadBytes) > 0 {
			payload := map[string]any{}
			if err := json.Unmarshal(payloadBytes, &payload); err != nil {
				return nil, err
			}
			event.Payload = payload
		} else {
			event.Payload = map[string]any{}
		}
		results = append(results, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PostgresStore) NextSeq(ctx context.Context, conversationID string) (int64, error) {
	const query = `
		INSERT INTO conversation_event_sequences (conversation_id, last_seq)
		VALUES ($1, 1)
		ON CONFLICT (conversation_id)
		DO UPDATE SET last_seq = conversation_event_sequences.last_seq + 1
		RETURNING last_seq
	`
	var seq int64
	if err := p.db.QueryRowContext(ctx, query, conversationID).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

const workflowColumns = `id, user_id, name, description, trigger_type, trigger_config, actions, is_active, execution_count, last_executed, created_at, updated_at`

func (p *PostgresStore) ListWorkflows(ctx context.Context, filter store.WorkflowFilter) ([]store.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE ($1 = '' OR user_id = $1) AND (NOT $2 OR is_active)
		ORDER BY updated_at DESC
		LIMIT $3
	`
	rows, err := p.db.QueryContext(ctx, query, filter.UserID, filter.ActiveOnly, limitValue(filter.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.Workflow{}
	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, workflow)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PostgresStore) GetWorkflow(ctx context.Context, workflowID string) (*store.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`
	workflow, err := scanWorkflow(p.db.QueryRowContext(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &workflow, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (store.Workflow, error) {
	var (
		workflow      store.Workflow
		description   sql.NullString
		triggerConfig []byte
		actions       []byte
		lastExecuted  sql.NullTime
		createdAt     time.Time
		updatedAt     time.Time
	)
	if err := row.Scan(
		&workflow.ID,
		&workflow.UserID,
		&workflow.Name,
		&description,
		&workflow.TriggerType,
		&triggerConfig,
		&actions,
		&workflow.IsActive,
		&workflow.ExecutionCount,
		&lastExecuted,
		&createdAt,
		&updatedAt,
	); err != nil {
		return store.Workflow{}, err
	}
	workflow.Description = description.String
	workflow.TriggerConfig = decodeJSONMap(triggerConfig)
	workflow.Actions = decodeJSONMaps(actions)
	if lastExecuted.Valid {
		workflow.LastExecuted = formatTimestamp(lastExecuted.Time)
	}
	workflow.CreatedAt = formatTimestamp(createdAt)
	workflow.UpdatedAt = formatTimestamp(updatedAt)
	return workflow, nil
}

func (p *PostgresStore) CreateWorkflow(ctx context.Context, workflow store.Workflow) error {
	triggerConfig, err := encodeJSONMap(workflow.TriggerConfig)
	if err != nil {
		return err
	}
	actions := workflow.Actions
	if actions == nil {
		actions = []map[string]any{}
	}
	actionsBytes, err := json.Marshal(actions)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = p.db.ExecContext(
		ctx,
		query,
		workflow.ID,
		workflow.UserID,
		workflow.Name,
		nullString(workflow.Description),
		workflow.TriggerType,
		triggerConfig,
		actionsBytes,
		workflow.IsActive,
		workflow.ExecutionCount,
		parseTimestampNull(workflow.LastExecuted),
		parseTimestampValue(workflow.CreatedAt),
		parseTimestampValue(workflow.UpdatedAt),
	)
	return err
}

func (p *PostgresStore) ListWorkflowRuns(ctx context.Context, filter store.WorkflowRunFilter) ([]store.WorkflowRun, error) {
	const query = `
		SELECT id, workflow_id, user_id, status, error, started_at, completed_at
		FROM workflow_runs
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR workflow_id = $2)
		ORDER BY started_at DESC
		LIMIT $3
	`
	rows, err := p.db.QueryContext(ctx, query, filter.UserID, filter.WorkflowID, limitValue(filter.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.WorkflowRun{}
	for rows.Next() {
		var (
			run         store.WorkflowRun
			runErr      sql.NullString
			startedAt   time.Time
			completedAt sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.WorkflowID, &run.UserID, &run.Status, &runErr, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		run.Error = runErr.String
		run.StartedAt = formatTimestamp(startedAt)
		if completedAt.Valid {
			run.CompletedAt = formatTimestamp(completedAt.Time)
		}
		results = append(results, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// CreateWorkflowRun also bumps the parent workflow's execution counters.
func (p *PostgresStore) CreateWorkflowRun(ctx context.Context, run store.WorkflowRun) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insert = `
		INSERT INTO workflow_runs (id, workflow_id, user_id, status, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	startedAt := parseTimestampValue(run.StartedAt)
	if _, err = tx.ExecContext(ctx, insert, run.ID, run.WorkflowID, run.UserID, run.Status, nullString(run.Error), startedAt, parseTimestampNull(run.CompletedAt)); err != nil {
		return err
	}
	const bump = `
		UPDATE workflows
		SET execution_count = execution_count + 1, last_executed = $2
		WHERE id = $1
	`
	if _, err = tx.ExecContext(ctx, bump, run.WorkflowID, startedAt); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

func (p *PostgresStore) ListIntegrations(ctx context.Context, userID string) ([]store.Integration, error) {
	const query = `
		SELECT id, user_id, service_name, service_type, access_token_enc, refresh_token_enc, expires_at, is_active, created_at, updated_at
		FROM integrations
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC
	`
	rows, err := p.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.Integration{}
	for rows.Next() {
		var (
			integration  store.Integration
			refreshToken sql.NullString
			expiresAt    sql.NullTime
			createdAt    time.Time
			updatedAt    time.Time
		)
		if err := rows.Scan(
			&integration.ID,
			&integration.UserID,
			&integration.ServiceName,
			&integration.ServiceType,
			&integration.AccessTokenEnc,
			&refreshToken,
			&expiresAt,
			&integration.IsActive,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, err
		}
		integration.RefreshTokenEnc = refreshToken.String
		if expiresAt.Valid {
			integration.ExpiresAt = formatTimestamp(expiresAt.Time)
		}
		integration.CreatedAt = formatTimestamp(createdAt)
		integration.UpdatedAt = formatTimestamp(updatedAt)
		results = append(results, integration)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PostgresStore) CreateIntegration(ctx context.Context, integration store.Integration) error {
	const query = `
		INSERT INTO integrations (id, user_id, service_name, service_type, access_token_enc, refresh_token_enc, expires_at, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		integration.ID,
		integration.UserID,
		integration.ServiceName,
		integration.ServiceType,
		integration.AccessTokenEnc,
		nullString(integration.RefreshTokenEnc),
		parseTimestampNull(integration.ExpiresAt),
		integration.IsActive,
		parseTimestampValue(integration.CreatedAt),
		parseTimestampValue(integration.UpdatedAt),
	)
	return err
}

func parseTimestampValue(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return time.Now().UTC()
	}
	return parsed.UTC()
}

func parseTimestampNull(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil
	}
	return parsed.UTC()
}

func formatTimestamp(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func nullString(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return value
}

func limitValue(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func encodeJSONMap(value map[string]any) ([]byte, error) {
	if value == nil {
		value = map[string]any{}
	}
	return json.Marshal(value)
}

func decodeJSONMap(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return map[string]any{}
	}
	return payload
}

func decodeJSONMaps(raw []byte) []map[string]any {
	if len(raw) == 0 {
		return []map[string]any{}
	}
	values := []map[string]any{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return []map[string]any{}
	}
	return values
}
