package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
)

// ErrNoCredentials is returned when a token is requested without an API key
// and secret.
var ErrNoCredentials = errors.New("livekit api key and secret are required")

// DefaultTokenTTL is how long an issued participant token stays valid.
const DefaultTokenTTL = 15 * time.Minute

// Credentials are the LiveKit API key pair used to sign access tokens.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Valid reports whether both halves of the key pair are set.
func (c Credentials) Valid() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// TokenRequest describes one participant token.
type TokenRequest struct {
	Room     string
	Identity string
	Name     string
	TTL      time.Duration
}

// IssueToken signs a room-join token for req.
func IssueToken(creds Credentials, req TokenRequest) (string, error) {
	if !creds.Valid() {
		return "", ErrNoCredentials
	}
	if req.Room == "" || req.Identity == "" {
		return "", fmt.Errorf("room and identity are required")
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	canPublish := true
	canSubscribe := true
	at := auth.NewAccessToken(creds.APIKey, creds.APISecret)
	at.AddGrant(&auth.VideoGrant{
		RoomJoin:       true,
		Room:           req.Room,
		CanPublish:     &canPublish,
		CanSubscribe:   &canSubscribe,
		CanPublishData: &canPublish,
	}).
		SetIdentity(req.Identity).
		SetName(req.Name).
		SetValidFor(ttl)

	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}
