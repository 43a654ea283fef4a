package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// UserLookup resolves the user id carried by a token.
type UserLookup interface {
	LookupUser(ctx context.Context, id string) (Identity, error)
}

// JWTVerifier checks HS256 access tokens locally and resolves their `uuid` claim
// against the users table.
type JWTVerifier struct {
	secret []byte
	users  UserLookup
	parser *jwt.Parser
}

func NewJWTVerifier(secret string, users UserLookup) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		users:  users,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	uid, _ := claims["uuid"].(string)
	if strings.TrimSpace(uid) == "" {
		return Identity{}, fmt.Errorf("%w: token has no uuid claim", ErrUnauthorized)
	}
	id, err := v.users.LookupUser(ctx, uid)
	if errors.Is(err, ErrUserNotFound) {
		return Identity{}, fmt.Errorf("%w: unknown user %s", ErrUnauthorized, uid)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("%w: lookup user: %v", ErrUnauthorized, err)
	}
	return id, nil
}

// PostgresUsers reads accounts from the users table owned by the identity service.
type PostgresUsers struct {
	db *sql.DB
}

func NewPostgresUsers(db *sql.DB) *PostgresUsers { return &PostgresUsers{db: db} }

func (p *PostgresUsers) LookupUser(ctx context.Context, id string) (Identity, error) {
	var out Identity
	err := p.db.QueryRowContext(ctx,
		`SELECT uuid::text, username FROM users WHERE uuid::text = $1`, id,
	).Scan(&out.ID, &out.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrUserNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("select users: %w", err)
	}
	return out, nil
}
