package auth

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/bidworks/auction-engine/pkg/errors"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwe"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"golang.org/x/crypto/hkdf"
)

const sessionCookie = "authjs.session-token"

// Session identifies the authenticated caller of a bid or rejection.
type Session struct {
	UserID string
	Email  string
}

func generateEncryptionKey() ([]byte, error) {
	authSecret := os.Getenv("AUTH_SECRET")
	if authSecret == "" {
		return nil, errors.New(errors.ErrInternalServer, "AUTH_SECRET not set")
	}

	salt := sessionCookie
	info := fmt.Sprintf("Auth.js Generated Encryption Key (%s)", salt)

	// HKDF with SHA-256
	hash := sha256.New
	kdf := hkdf.New(hash, []byte(authSecret), []byte(salt), []byte(info))

	key := make([]byte, 64)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, errors.Wrap(err, "failed to generate key")
	}

	return key, nil
}

func jweToJwt(encryptedToken string) (string, error) {
	key, err := generateEncryptionKey()
	if err != nil {
		return "", errors.Wrap(err, "failed to generate encryption key")
	}

	// Decrypt JWE using DIRECT key encryption; the content encryption
	// algorithm comes from the token header.
	decrypted, err := jwe.Decrypt([]byte(encryptedToken),
		jwe.WithKey(jwa.DIRECT(), key))
	if err != nil {
		return "", errors.Wrap(err, "failed to decrypt JWE")
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(decrypted, &payload); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal decrypted payload")
	}

	token := jwt.New()
	for k, v := range payload {
		token.Set(k, v)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), []byte(os.Getenv("AUTH_SECRET"))))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign JWT")
	}

	return string(signed), nil
}

// SessionFromRequest validates the session cookie and returns the caller's
// identity.
func SessionFromRequest(r *http.Request) (Session, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return Session{}, errors.New(errors.ErrForbidden, "missing session token cookie")
	}

	// Convert JWE to JWT
	jwtString, err := jweToJwt(cookie.Value)
	if err != nil {
		return Session{}, errors.Wrap(err, "failed to convert JWE to JWT")
	}

	// Verify JWT
	token, err := jwt.Parse([]byte(jwtString),
		jwt.WithKey(jwa.HS256(), []byte(os.Getenv("AUTH_SECRET"))),
		jwt.WithValidate(true))
	if err != nil {
		return Session{}, errors.Wrap(err, "failed to validate token")
	}

	// Check expiration
	if exp, ok := token.Expiration(); ok && exp.Before(time.Now()) {
		return Session{}, errors.New(errors.ErrForbidden, "session token expired")
	}

	session := Session{}
	if sub, ok := token.Subject(); ok {
		session.UserID = sub
	}
	if err := token.Get("email", &session.Email); err != nil {
		return Session{}, errors.New(errors.ErrForbidden, "session token has no email claim")
	}
	if session.UserID == "" {
		return Session{}, errors.New(errors.ErrForbidden, "session token has no subject")
	}

	return session, nil
}
