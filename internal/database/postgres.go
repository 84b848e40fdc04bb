package database

import (
	"context"
	"errors"
	"fmt"

	"devchat/internal/models"
	"devchat/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// User Repository Implementation
func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, username, email, password_hash, created_at FROM users WHERE email = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, username, email, created_at`

	user := &models.User{PasswordHash: passwordHash}
	err := db.pool.QueryRow(ctx, query, username, email, passwordHash).Scan(
		&user.ID, &user.Username, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT id, username, email, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Room Repository Implementation
func (db *PostgresDB) CreateRoom(ctx context.Context, name, code string, ownerID int64) (*models.Room, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO rooms (name, code, owner_id, is_active, last_active_at, created_at)
		VALUES ($1, $2, $3, true, NOW(), NOW())
		RETURNING id, name, code, owner_id, is_active, last_active_at, created_at`

	room := &models.Room{}
	err = tx.QueryRow(ctx, query, name, code, ownerID).Scan(
		&room.ID, &room.Name, &room.Code, &room.OwnerID, &room.IsActive, &room.LastActiveAt, &room.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	membershipQuery := `
		INSERT INTO memberships (room_id, user_id, role, status, joined_at)
		VALUES ($1, $2, $3, $4, NOW())`
	if _, err := tx.Exec(ctx, membershipQuery, room.ID, ownerID, models.RoleOwner, models.MembershipActive); err != nil {
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	room.MembershipRole = models.RoleOwner
	return room, nil
}

func (db *PostgresDB) GetRoomByID(ctx context.Context, id int64) (*models.Room, error) {
	query := `
		SELECT r.id, r.name, r.code, r.owner_id, u.username, r.is_active, r.last_active_at, r.created_at
		FROM rooms r
		JOIN users u ON u.id = r.owner_id
		WHERE r.id = $1`

	room := &models.Room{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&room.ID, &room.Name, &room.Code, &room.OwnerID, &room.OwnerName, &room.IsActive, &room.LastActiveAt, &room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return room, nil
}

func (db *PostgresDB) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	query := `
		SELECT r.id, r.name, r.code, r.owner_id, u.username, r.is_active, r.last_active_at, r.created_at
		FROM rooms r
		JOIN users u ON u.id = r.owner_id
		WHERE r.code = $1`

	room := &models.Room{}
	err := db.pool.QueryRow(ctx, query, code).Scan(
		&room.ID, &room.Name, &room.Code, &room.OwnerID, &room.OwnerName, &room.IsActive, &room.LastActiveAt, &room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return room, nil
}

func (db *PostgresDB) ListUserRooms(ctx context.Context, userID int64) ([]*models.Room, error) {
	query := `
		SELECT r.id, r.name, r.code, r.owner_id, u.username, r.is_active, r.last_active_at, r.created_at, m.role
		FROM memberships m
		JOIN rooms r ON r.id = m.room_id AND r.is_active = true
		JOIN users u ON u.id = r.owner_id
		WHERE m.user_id = $1 AND m.status = $2
		ORDER BY r.last_active_at DESC`

	rows, err := db.pool.Query(ctx, query, userID, models.MembershipActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room := &models.Room{}
		if err := rows.Scan(
			&room.ID, &room.Name, &room.Code, &room.OwnerID, &room.OwnerName,
			&room.IsActive, &room.LastActiveAt, &room.CreatedAt, &room.MembershipRole,
		); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PostgresDB) TouchRoom(ctx context.Context, roomID int64) error {
	// GREATEST keeps last_active_at monotonically non-decreasing.
	query := `UPDATE rooms SET last_active_at = GREATEST(last_active_at, NOW()) WHERE id = $1`
	_, err := db.pool.Exec(ctx, query, roomID)
	return err
}

// Membership Repository Implementation
func (db *PostgresDB) GetActiveMembership(ctx context.Context, roomID, userID int64) (*models.Membership, error) {
	query := `
		SELECT id, room_id, user_id, role, status, joined_at, left_at
		FROM memberships
		WHERE room_id = $1 AND user_id = $2 AND status = $3`

	m := &models.Membership{}
	err := db.pool.QueryRow(ctx, query, roomID, userID, models.MembershipActive).Scan(
		&m.ID, &m.RoomID, &m.UserID, &m.Role, &m.Status, &m.JoinedAt, &m.LeftAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return m, nil
}

func (db *PostgresDB) UpsertActiveMembership(ctx context.Context, roomID, userID int64, role string) (*models.Membership, error) {
	query := `
		INSERT INTO memberships (room_id, user_id, role, status, joined_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (room_id, user_id)
		DO UPDATE SET status = EXCLUDED.status, role = EXCLUDED.role, left_at = NULL
		RETURNING id, room_id, user_id, role, status, joined_at, left_at`

	m := &models.Membership{}
	err := db.pool.QueryRow(ctx, query, roomID, userID, role, models.MembershipActive).Scan(
		&m.ID, &m.RoomID, &m.UserID, &m.Role, &m.Status, &m.JoinedAt, &m.LeftAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert membership: %w", err)
	}

	return m, nil
}

func (db *PostgresDB) MarkMembershipLeft(ctx context.Context, roomID, userID int64) error {
	query := `
		UPDATE memberships SET status = $3, left_at = NOW()
		WHERE room_id = $1 AND user_id = $2 AND status = $4`
	_, err := db.pool.Exec(ctx, query, roomID, userID, models.MembershipLeft, models.MembershipActive)
	return err
}

// Message Repository Implementation
func (db *PostgresDB) SaveMessage(ctx context.Context, roomID int64, senderID *int64, content, msgType string, aiTriggeredBy *int64) (*models.Message, error) {
	query := `
		WITH inserted AS (
			INSERT INTO messages (room_id, sender_id, content, type, ai_triggered_by, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			RETURNING id, room_id, sender_id, content, type, ai_triggered_by, created_at
		)
		SELECT i.id, i.room_id, i.sender_id, i.content, i.type, i.ai_triggered_by, i.created_at,
		       COALESCE(s.username, ''), COALESCE(t.username, '')
		FROM inserted i
		LEFT JOIN users s ON s.id = i.sender_id
		LEFT JOIN users t ON t.id = i.ai_triggered_by`

	msg := &models.Message{}
	err := db.pool.QueryRow(ctx, query, roomID, senderID, content, msgType, aiTriggeredBy).Scan(
		&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Content, &msg.Type, &msg.AITriggeredBy, &msg.CreatedAt,
		&msg.SenderName, &msg.AITriggeredByName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	return msg, nil
}

func (db *PostgresDB) ListRecentMessages(ctx context.Context, roomID int64, limit int) ([]*models.Message, error) {
	return db.ListMessagesBefore(ctx, roomID, 0, limit)
}

func (db *PostgresDB) ListMessagesBefore(ctx context.Context, roomID, beforeID int64, limit int) ([]*models.Message, error) {
	query := `
		SELECT m.id, m.room_id, m.sender_id, m.content, m.type, m.ai_triggered_by, m.created_at,
		       COALESCE(s.username, ''), COALESCE(t.username, '')
		FROM messages m
		LEFT JOIN users s ON s.id = m.sender_id
		LEFT JOIN users t ON t.id = m.ai_triggered_by
		WHERE m.room_id = $1 AND ($2::bigint = 0 OR m.id < $2)
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $3`

	rows, err := db.pool.Query(ctx, query, roomID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(
			&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Content, &msg.Type, &msg.AITriggeredBy, &msg.CreatedAt,
			&msg.SenderName, &msg.AITriggeredByName,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

var _ Database = (*PostgresDB)(nil)
