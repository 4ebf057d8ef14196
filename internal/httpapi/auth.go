package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/prreview/orchestrator/internal/apperr"
)

// TokenAuthenticator implements realtime.Authenticator with a bearer token
// of the form "<base64url(userID.expiryUnix)>.<hex-hmac>", issued by IssueToken and
// verified the same constant-time-HMAC way the ingestion gateway verifies
// inbound webhook signatures (internal/ingestion/gateway.go's
// verifySignature) -- the wire protocol (§4.7) only names the
// {type:"authenticate", token} message shape, not an issuance/validation
// scheme, so this reuses the one HMAC pattern already established in this
// module rather than pulling in a JWT library the example pack never uses.
type TokenAuthenticator struct {
	secret []byte
}

// NewTokenAuthenticator builds an authenticator keyed on secret, normally
// the same webhook/session secret the deployment already manages.
func NewTokenAuthenticator(secret string) *TokenAuthenticator {
	return &TokenAuthenticator{secret: []byte(secret)}
}

// IssueToken mints a bearer token for userID valid for ttl, handed out by
// whatever session endpoint authenticates the human (out of scope here;
// §1 Non-goals excludes building a new identity provider).
func (a *TokenAuthenticator) IssueToken(userID string, ttl time.Duration) string {
	expiry := time.Now().Add(ttl).Unix()
	payload := userID + "." + strconv.FormatInt(expiry, 10)
	sig := a.sign(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + sig
}

// Authenticate implements realtime.Authenticator.
func (a *TokenAuthenticator) Authenticate(token string) (string, error) {
	dot := strings.LastIndex(token, ".")
	if dot < 0 {
		return "", apperr.New(apperr.Unauthorized, "httpapi.Authenticate", errMalformedToken)
	}
	encodedPayload, sig := token[:dot], token[dot+1:]

	rawPayload, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return "", apperr.New(apperr.Unauthorized, "httpapi.Authenticate", errMalformedToken)
	}
	payload := string(rawPayload)

	if !hmac.Equal([]byte(sig), []byte(a.sign(payload))) {
		return "", apperr.New(apperr.Unauthorized, "httpapi.Authenticate", errBadSignature)
	}

	parts := strings.SplitN(payload, ".", 2)
	if len(parts) != 2 {
		return "", apperr.New(apperr.Unauthorized, "httpapi.Authenticate", errMalformedToken)
	}
	userID, expiryStr := parts[0], parts[1]

	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return "", apperr.New(apperr.Unauthorized, "httpapi.Authenticate", errMalformedToken)
	}
	if time.Now().Unix() > expiry {
		return "", apperr.New(apperr.Unauthorized, "httpapi.Authenticate", errExpiredToken)
	}

	return userID, nil
}

func (a *TokenAuthenticator) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

type authError string

func (e authError) Error() string { return string(e) }

const (
	errMalformedToken authError = "malformed token"
	errBadSignature   authError = "invalid token signature"
	errExpiredToken   authError = "token expired"
)
