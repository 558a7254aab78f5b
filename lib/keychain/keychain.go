// Package keychain stores per-user, per-site portal credentials in a
// local keyed store. Secrets are held as-is: encrypting them at rest is
// the job of the deployment's credential service, this store exists so
// the extraction engine and its tests have a concrete gateway to talk
// to.
package keychain

import (
	"context"
	"database/sql"

	_ "embed"

	"hwscraper-backend/lib/timezone"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

type Credentials struct {
	Username       string
	Password       string
	Verified       bool
	LastVerifiedAt int64
}

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

func (s Store) GetCredentials(ctx context.Context, userID, site string) (Credentials, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT username, password, verified, last_verified_at
		FROM username_password WHERE user_id = ? AND site = ?`,
		userID, site,
	)

	var creds Credentials
	var verified int64
	err := row.Scan(&creds.Username, &creds.Password, &verified, &creds.LastVerifiedAt)
	if err == sql.ErrNoRows {
		return Credentials{}, false, nil
	}
	if err != nil {
		return Credentials{}, false, err
	}
	creds.Verified = verified != 0
	return creds, true, nil
}

func (s Store) SetCredentials(ctx context.Context, userID, site string, creds Credentials) error {
	verified := int64(0)
	if creds.Verified {
		verified = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO username_password (user_id, site, username, password, verified, last_verified_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, site) DO UPDATE SET
			username = excluded.username,
			password = excluded.password,
			verified = excluded.verified,
			last_verified_at = excluded.last_verified_at`,
		userID, site, creds.Username, creds.Password, verified, creds.LastVerifiedAt,
	)
	return err
}

// SetVerified flips the verified flag after a login attempt settles
// whether the stored secret actually works.
func (s Store) SetVerified(ctx context.Context, userID, site string, verified bool) error {
	v := int64(0)
	verifiedAt := int64(0)
	if verified {
		v = 1
		verifiedAt = timezone.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE username_password SET verified = ?, last_verified_at = ?
		WHERE user_id = ? AND site = ?`,
		v, verifiedAt, userID, site,
	)
	return err
}
