// Package otp issues and redeems short-lived numeric codes backed by
// redis. Codes are stored hashed; the clear text exists only in the
// outbound text message.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	dErrors "contactshare/pkg/domain-errors"
)

// CodeLength is the number of digits in an issued code.
const CodeLength = 8

type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Issuer mints one active code per key. Issuing again replaces the
// previous code.
type Issuer struct {
	client redisClient
	ttl    time.Duration
}

func NewIssuer(client redisClient, ttl time.Duration) *Issuer {
	return &Issuer{client: client, ttl: ttl}
}

// Issue generates a fresh code for the key and returns its clear text.
func (i *Issuer) Issue(ctx context.Context, key string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate code")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash code")
	}
	if err := i.client.Set(ctx, storageKey(key), string(hash), i.ttl).Err(); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store code")
	}
	return code, nil
}

// Redeem checks the code against the stored hash and consumes it on
// success. An expired or never-issued key reads as not found.
func (i *Issuer) Redeem(ctx context.Context, key, code string) error {
	hash, err := i.client.Get(ctx, storageKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return dErrors.New(dErrors.CodeNotFound, "no active code; request a new one")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load code")
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		return dErrors.New(dErrors.CodeValidation, "code does not match")
	}
	if err := i.client.Del(ctx, storageKey(key)).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume code")
	}
	return nil
}

func storageKey(key string) string {
	return "otp:" + key
}

func generateCode() (string, error) {
	ceiling := big.NewInt(1)
	for range CodeLength {
		ceiling.Mul(ceiling, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, ceiling)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n), nil
}
