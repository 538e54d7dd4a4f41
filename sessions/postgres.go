package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-login-service/internal/dbx"
	lserrors "github.com/jrsteele09/go-login-service/internal/errors"
)

var _ Repo = (*PostgresRepo)(nil)

type PostgresRepo struct {
	db              *sql.DB
	resourceBaseURI string
}

// NewPostgresRepo creates the repository. resourceBaseURI prefixes account uris and
// defaults to DefaultResourceBaseURI.
func NewPostgresRepo(db *sql.DB, resourceBaseURI string) *PostgresRepo {
	if resourceBaseURI == "" {
		resourceBaseURI = DefaultResourceBaseURI
	}
	return &PostgresRepo{db: db, resourceBaseURI: resourceBaseURI}
}

const (
	upsertPersonSQL = `INSERT INTO persons (id, unique_id, name) VALUES ($1, $2, $3)
ON CONFLICT (unique_id) DO UPDATE SET name = EXCLUDED.name
RETURNING id`

	upsertAccountSQL = `INSERT INTO accounts (id, person_id, local_account_id, home_account_id, username) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (local_account_id) DO UPDATE SET person_id = EXCLUDED.person_id, home_account_id = EXCLUDED.home_account_id, username = EXCLUDED.username
RETURNING id`

	selectGroupsSQL = `SELECT group_name FROM account_groups WHERE account_id = $1 ORDER BY group_name`

	insertSessionSQL = `INSERT INTO sessions (session_uri, id, account_id, home_account_id, access_token, expires_at, created_at, modified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (session_uri) DO UPDATE SET id = EXCLUDED.id, account_id = EXCLUDED.account_id, home_account_id = EXCLUDED.home_account_id,
access_token = EXCLUDED.access_token, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at, modified_at = EXCLUDED.modified_at
RETURNING id`

	updateTokenSQL = `UPDATE sessions SET home_account_id = $2, access_token = $3, expires_at = $4, modified_at = $5 WHERE session_uri = $1`

	deleteSessionSQL = `DELETE FROM sessions WHERE session_uri = $1`

	listActiveSQL = `SELECT session_uri, home_account_id, access_token, expires_at FROM sessions
WHERE home_account_id <> '' AND expires_at IS NOT NULL ORDER BY created_at, session_uri`

	selectAccountBySessionSQL = `SELECT a.id, a.person_id, a.home_account_id, p.name, a.username
FROM sessions s JOIN accounts a ON a.id = s.account_id JOIN persons p ON p.id = a.person_id
WHERE s.session_uri = $1`

	selectCurrentSessionSQL = `SELECT s.id, a.id, p.name, a.username
FROM sessions s JOIN accounts a ON a.id = s.account_id JOIN persons p ON p.id = a.person_id
WHERE s.session_uri = $1`
)

// EnsureUserAndAccount finds or creates the person and account for identity in one transaction.
func (r *PostgresRepo) EnsureUserAndAccount(ctx context.Context, identity Identity) (*Account, error) {
	if identity.UniqueID == "" || identity.LocalAccountID == "" {
		return nil, fmt.Errorf("[PostgresRepo EnsureUserAndAccount] identity requires unique id and local account id")
	}

	account := &Account{
		HomeAccountID: identity.HomeAccountID,
		Name:          identity.Name,
		Username:      identity.Username,
	}
	err := dbx.WithTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		if err := tx.QueryRowContext(ctx, upsertPersonSQL, uuid.NewString(), identity.UniqueID, identity.Name).Scan(&account.PersonID); err != nil {
			return fmt.Errorf("upsert person: %w", err)
		}
		if err := tx.QueryRowContext(ctx, upsertAccountSQL, uuid.NewString(), account.PersonID,
			identity.LocalAccountID, identity.HomeAccountID, identity.Username).Scan(&account.ID); err != nil {
			return fmt.Errorf("upsert account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("[PostgresRepo EnsureUserAndAccount] %w", err)
	}
	account.URI = AccountURI(r.resourceBaseURI, account.ID)
	return account, nil
}

func (r *PostgresRepo) UserGroups(ctx context.Context, accountID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, selectGroupsSQL, accountID)
	if err != nil {
		return nil, fmt.Errorf("[PostgresRepo UserGroups] %w", err)
	}
	defer rows.Close()

	groups := make([]string, 0)
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("[PostgresRepo UserGroups] scan: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("[PostgresRepo UserGroups] %w", err)
	}
	return groups, nil
}

func (r *PostgresRepo) InsertSession(ctx context.Context, accountID, sessionURI string, info TokenInfo) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, insertSessionSQL, sessionURI, uuid.NewString(), accountID,
		info.HomeAccountID, info.AccessToken, nullTime(info.ExpiresAt), NowTimeFunc().UTC()).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("[PostgresRepo InsertSession] %w", err)
	}
	return id, nil
}

func (r *PostgresRepo) PersistTokenInfo(ctx context.Context, sessionURI string, info TokenInfo) error {
	res, err := r.db.ExecContext(ctx, updateTokenSQL, sessionURI, info.HomeAccountID, info.AccessToken,
		nullTime(info.ExpiresAt), NowTimeFunc().UTC())
	if err != nil {
		return fmt.Errorf("[PostgresRepo PersistTokenInfo] %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("[PostgresRepo PersistTokenInfo] %w", err)
	}
	if n == 0 {
		return lserrors.Wrapf(lserrors.ErrSessionNotFound, "[PostgresRepo PersistTokenInfo] %s", sessionURI)
	}
	return nil
}

func (r *PostgresRepo) RemoveSession(ctx context.Context, sessionURI string) error {
	if _, err := r.db.ExecContext(ctx, deleteSessionSQL, sessionURI); err != nil {
		return fmt.Errorf("[PostgresRepo RemoveSession] %w", err)
	}
	return nil
}

func (r *PostgresRepo) ListActiveTokenSessions(ctx context.Context) ([]ActiveSession, error) {
	rows, err := r.db.QueryContext(ctx, listActiveSQL)
	if err != nil {
		return nil, fmt.Errorf("[PostgresRepo ListActiveTokenSessions] %w", err)
	}
	defer rows.Close()

	active := make([]ActiveSession, 0)
	for rows.Next() {
		var s ActiveSession
		if err := rows.Scan(&s.SessionURI, &s.Token.HomeAccountID, &s.Token.AccessToken, &s.Token.ExpiresAt); err != nil {
			return nil, fmt.Errorf("[PostgresRepo ListActiveTokenSessions] scan: %w", err)
		}
		active = append(active, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("[PostgresRepo ListActiveTokenSessions] %w", err)
	}
	return active, nil
}

func (r *PostgresRepo) SelectAccountBySession(ctx context.Context, sessionURI string) (*Account, error) {
	var a Account
	err := r.db.QueryRowContext(ctx, selectAccountBySessionSQL, sessionURI).
		Scan(&a.ID, &a.PersonID, &a.HomeAccountID, &a.Name, &a.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[PostgresRepo SelectAccountBySession] %w", err)
	}
	a.URI = AccountURI(r.resourceBaseURI, a.ID)
	return &a, nil
}

func (r *PostgresRepo) SelectCurrentSession(ctx context.Context, sessionURI string) (*CurrentSession, error) {
	var cs CurrentSession
	err := r.db.QueryRowContext(ctx, selectCurrentSessionSQL, sessionURI).
		Scan(&cs.ID, &cs.AccountID, &cs.Name, &cs.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[PostgresRepo SelectCurrentSession] %w", err)
	}
	return &cs, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
