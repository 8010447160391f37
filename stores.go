package sfapi

import (
	"encoding/json"
	"time"

	"github.com/Sakib25800/framer-salesforce-api/cache"
)

// Default lifetimes of the hand-off namespaces.
const (
	DefaultHandoffTTL = 60 * time.Second
	DefaultResultTTL  = 300 * time.Second
)

// PendingHandoff is written at authorize and consumed at redirect.
type PendingHandoff struct {
	ReadKey      string `json:"readKey"`
	CodeVerifier string `json:"codeVerifier"`
}

// StoredCredential is the only durable credential: a refresh token and the
// org it belongs to.
type StoredCredential struct {
	RefreshToken string `json:"refreshToken"`
	InstanceURL  string `json:"instanceUrl"`
	OrgID        string `json:"orgId"`
}

// WebFormToken binds a public webhook token to a user and target object.
type WebFormToken struct {
	ObjectName string `json:"objectName"`
	UserID     string `json:"userId"`
}

// UserFormEntry indexes a user's web forms so logout can find them with a
// prefix scan.
type UserFormEntry struct {
	FormToken  string `json:"formToken"`
	ObjectName string `json:"objectName"`
}

// Key templates of every namespace.
var (
	PendingHandoffKey   = cache.MustKeyTemplate("readKey:{writeKey}")
	PendingResultKey    = cache.MustKeyTemplate("tokens:{readKey}")
	StoredCredentialKey = cache.MustKeyTemplate("user:{userId}")
	WebFormTokenKey     = cache.MustKeyTemplate("web:{formToken}")
	UserFormIndexKey    = cache.MustKeyTemplate("userform:{userId}:{formToken}")
)

var (
	pendingHandoffSchema = cache.MustSchema("pending hand-off", `{
		"type": "object",
		"required": ["readKey", "codeVerifier"],
		"properties": {
			"readKey": {"type": "string", "minLength": 1},
			"codeVerifier": {"type": "string", "minLength": 43, "maxLength": 128}
		}
	}`)

	pendingResultSchema = cache.MustSchema("pending result", `{
		"type": "object",
		"required": ["access_token", "instance_url"],
		"properties": {
			"access_token": {"type": "string", "minLength": 1},
			"refresh_token": {"type": "string"},
			"instance_url": {"type": "string", "minLength": 1},
			"id": {"type": "string"},
			"token_type": {"type": "string"},
			"issued_at": {"type": "string"},
			"signature": {"type": "string"},
			"scope": {"type": "string"}
		}
	}`)

	storedCredentialSchema = cache.MustSchema("stored credential", `{
		"type": "object",
		"required": ["refreshToken", "instanceUrl", "orgId"],
		"properties": {
			"refreshToken": {"type": "string", "minLength": 1},
			"instanceUrl": {"type": "string", "minLength": 1},
			"orgId": {"type": "string"}
		}
	}`)

	webFormTokenSchema = cache.MustSchema("web form token", `{
		"type": "object",
		"required": ["objectName", "userId"],
		"properties": {
			"objectName": {"type": "string", "minLength": 1},
			"userId": {"type": "string", "minLength": 1}
		}
	}`)

	userFormEntrySchema = cache.MustSchema("user form entry", `{
		"type": "object",
		"required": ["formToken", "objectName"],
		"properties": {
			"formToken": {"type": "string", "minLength": 1},
			"objectName": {"type": "string", "minLength": 1}
		}
	}`)
)

// Stores groups the namespaces. Hand-off data lives on the ephemeral
// backend; credentials and web forms on the durable one. Both may be the
// same backend.
type Stores struct {
	PendingHandoffs *cache.Store[PendingHandoff]
	PendingResults  *cache.Store[json.RawMessage]
	Credentials     *cache.Store[StoredCredential]
	WebForms        *cache.Store[WebFormToken]
	UserForms       *cache.Store[UserFormEntry]

	HandoffTTL time.Duration
	ResultTTL  time.Duration
}

// NewStores binds every namespace to its backend with default TTLs.
func NewStores(ephemeral, durable cache.Backend) *Stores {
	return &Stores{
		PendingHandoffs: cache.NewStore[PendingHandoff](ephemeral, PendingHandoffKey, pendingHandoffSchema),
		PendingResults:  cache.NewStore[json.RawMessage](ephemeral, PendingResultKey, pendingResultSchema),
		Credentials:     cache.NewStore[StoredCredential](durable, StoredCredentialKey, storedCredentialSchema),
		WebForms:        cache.NewStore[WebFormToken](durable, WebFormTokenKey, webFormTokenSchema),
		UserForms:       cache.NewStore[UserFormEntry](durable, UserFormIndexKey, userFormEntrySchema),
		HandoffTTL:      DefaultHandoffTTL,
		ResultTTL:       DefaultResultTTL,
	}
}

// WithTTLs overrides the hand-off lifetimes. Zero values keep the defaults.
func (s *Stores) WithTTLs(handoff, result time.Duration) *Stores {
	if handoff > 0 {
		s.HandoffTTL = handoff
	}
	if result > 0 {
		s.ResultTTL = result
	}

	return s
}
