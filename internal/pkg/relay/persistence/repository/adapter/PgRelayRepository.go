package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	relay "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/domain"
)

// PgRelayRepository implements the MessageLog, MembershipStore and
// ActivityRecorder ports against the relay schema:
//
//	relay.room_member (room_id, user_id)
//	relay.room_seq    (room_id, last_seq)
//	relay.message     (room_id, seq, author_id, body, created_at, edited, deleted)
//	relay.room        (id, last_active_at, ...)
type PgRelayRepository struct {
	pool *pgxpool.Pool
}

func NewPgRelayRepository(pool *pgxpool.Pool) *PgRelayRepository {
	return &PgRelayRepository{pool: pool}
}

// Append stores a message and assigns the next sequence id for the room. The
// counter bump and the insert run in one transaction, so a rolled-back append
// never burns an id. The upsert takes a row lock on the room's counter, so
// concurrent appends to the same room serialize inside Postgres even when no
// publish lock is held.
func (r *PgRelayRepository) Append(ctx context.Context, roomID string, authorID string, body string) (relay.Message, error) {
	if r == nil || r.pool == nil {
		return relay.Message{}, errors.New("PgRelayRepository: nil pool")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return relay.Message{}, fmt.Errorf("relay append: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var seq int64
	err = tx.QueryRow(ctx, `
		INSERT INTO relay.room_seq (room_id, last_seq)
		VALUES ($1, 1)
		ON CONFLICT (room_id) DO UPDATE SET last_seq = relay.room_seq.last_seq + 1
		RETURNING last_seq
	`, roomID).Scan(&seq)
	if err != nil {
		return relay.Message{}, fmt.Errorf("relay append: next seq: %w", err)
	}

	m := relay.Message{ID: seq, Room: roomID, Author: authorID, Body: body}
	err = tx.QueryRow(ctx, `
		INSERT INTO relay.message (room_id, seq, author_id, body, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING created_at
	`, roomID, seq, authorID, body).Scan(&m.CreatedAt)
	if err != nil {
		return relay.Message{}, fmt.Errorf("relay append: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return relay.Message{}, fmt.Errorf("relay append: commit: %w", err)
	}
	return m, nil
}

// ReadRange returns up to limit messages with seq > afterID in ascending
// order. This is the catch-up path for reconnects and the polling fallback.
func (r *PgRelayRepository) ReadRange(ctx context.Context, roomID string, afterID int64, limit int) ([]relay.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgRelayRepository: nil pool")
	}
	if limit <= 0 {
		limit = 50
	}
	if afterID < 0 {
		afterID = 0
	}

	rows, err := r.pool.Query(ctx, `
		SELECT room_id, seq, author_id, body, created_at, edited, deleted
		FROM relay.message
		WHERE room_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3
	`, roomID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []relay.Message
	for rows.Next() {
		var m relay.Message
		if err := rows.Scan(&m.Room, &m.ID, &m.Author, &m.Body, &m.CreatedAt, &m.Edited, &m.Deleted); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return msgs, nil
}

// Edit rewrites the body of the author's own message and marks it edited.
func (r *PgRelayRepository) Edit(ctx context.Context, roomID string, messageID int64, authorID string, body string) (relay.Message, error) {
	if r == nil || r.pool == nil {
		return relay.Message{}, errors.New("PgRelayRepository: nil pool")
	}
	var m relay.Message
	err := r.pool.QueryRow(ctx, `
		UPDATE relay.message
		SET body = $4, edited = TRUE
		WHERE room_id = $1 AND seq = $2 AND author_id = $3 AND NOT deleted
		RETURNING room_id, seq, author_id, body, created_at, edited, deleted
	`, roomID, messageID, authorID, body).Scan(&m.Room, &m.ID, &m.Author, &m.Body, &m.CreatedAt, &m.Edited, &m.Deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return relay.Message{}, relay.ErrMessageNotFound
	}
	if err != nil {
		return relay.Message{}, err
	}
	return m, nil
}

// Delete tombstones the author's own message. The row keeps its seq so the
// catch-up read still reports the deletion to late readers.
func (r *PgRelayRepository) Delete(ctx context.Context, roomID string, messageID int64, authorID string) error {
	if r == nil || r.pool == nil {
		return errors.New("PgRelayRepository: nil pool")
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE relay.message
		SET deleted = TRUE, body = ''
		WHERE room_id = $1 AND seq = $2 AND author_id = $3 AND NOT deleted
	`, roomID, messageID, authorID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return relay.ErrMessageNotFound
	}
	return nil
}

func (r *PgRelayRepository) IsMember(ctx context.Context, roomID string, userID string) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New("PgRelayRepository: nil pool")
	}
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM relay.room_member
			WHERE room_id = $1 AND user_id = $2
		)
	`, roomID, userID).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *PgRelayRepository) ListRoomsForUser(ctx context.Context, userID string) ([]string, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgRelayRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT room_id FROM relay.room_member WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}

func (r *PgRelayRepository) TouchRoom(ctx context.Context, roomID string) error {
	if r == nil || r.pool == nil {
		return errors.New("PgRelayRepository: nil pool")
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE relay.room SET last_active_at = now() WHERE id = $1
	`, roomID)
	return err
}
