package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/socialdeskapp/socialdesk/internal/crypto"
	"github.com/socialdeskapp/socialdesk/internal/models"
)

// ChannelStore persists channel connections. Access tokens are encrypted at
// rest and only decrypted when a caller explicitly asks for them.
type ChannelStore struct {
	pool   *pgxpool.Pool
	crypto crypto.Encryptor
}

func NewChannelStore(pool *pgxpool.Pool, encryptor crypto.Encryptor) (*ChannelStore, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	return &ChannelStore{pool: pool, crypto: encryptor}, nil
}

type ChannelConnection struct {
	Channel        models.Channel
	AccountName    string
	AccessToken    string
	TokenExpiresAt time.Time
	ConnectedAt    time.Time
}

func (s *ChannelStore) Upsert(ctx context.Context, conn ChannelConnection) error {
	encryptedToken, err := s.crypto.Encrypt(conn.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	expires := pgtype.Timestamptz{Time: conn.TokenExpiresAt, Valid: !conn.TokenExpiresAt.IsZero()}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO channel_connections (channel, account_name, access_token_encrypted, token_expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (channel) DO UPDATE
		SET account_name = EXCLUDED.account_name,
		    access_token_encrypted = EXCLUDED.access_token_encrypted,
		    token_expires_at = EXCLUDED.token_expires_at,
		    connected_at = now()`,
		string(conn.Channel), conn.AccountName, encryptedToken, expires,
	)
	return err
}

// Get returns the connection for a channel with the access token decrypted.
func (s *ChannelStore) Get(ctx context.Context, channel models.Channel) (*ChannelConnection, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT channel, account_name, access_token_encrypted, token_expires_at, connected_at
		FROM channel_connections
		WHERE channel = $1`, string(channel))

	conn, encryptedToken, err := scanConnection(row)
	if err != nil {
		return nil, err
	}

	token, err := s.crypto.Decrypt(encryptedToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	conn.AccessToken = token
	return conn, nil
}

// List returns all connections without decrypted tokens; status views don't
// need credentials.
func (s *ChannelStore) List(ctx context.Context) ([]*ChannelConnection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT channel, account_name, access_token_encrypted, token_expires_at, connected_at
		FROM channel_connections
		ORDER BY channel`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []*ChannelConnection
	for rows.Next() {
		conn, _, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

func (s *ChannelStore) Delete(ctx context.Context, channel models.Channel) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM channel_connections WHERE channel = $1`, string(channel))
	return err
}

type connectionRow interface {
	Scan(dest ...any) error
}

func scanConnection(row connectionRow) (*ChannelConnection, string, error) {
	var conn ChannelConnection
	var channel, encryptedToken string
	var expires, connected pgtype.Timestamptz

	if err := row.Scan(&channel, &conn.AccountName, &encryptedToken, &expires, &connected); err != nil {
		return nil, "", err
	}
	conn.Channel = models.Channel(channel)
	if expires.Valid {
		conn.TokenExpiresAt = expires.Time
	}
	conn.ConnectedAt = connected.Time
	return &conn, encryptedToken, nil
}
