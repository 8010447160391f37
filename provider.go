package sfapi

import (
	"context"
	"encoding/json"

	"github.com/Sakib25800/framer-salesforce-api/internal/salesforce"
)

// IdentityProvider is the subset of the Salesforce identity endpoints the
// services call. *salesforce.AuthClient implements it.
type IdentityProvider interface {
	AuthCodeURL(state, verifier string) string
	ExchangeCode(ctx context.Context, code, verifier string) (json.RawMessage, error)
	Refresh(ctx context.Context, refreshToken string) (json.RawMessage, error)
	UserInfo(ctx context.Context, accessToken string) (*salesforce.UserInfo, error)
	Revoke(ctx context.Context, token string) error
}

// ObjectAPI is the sObject REST API. *salesforce.ObjectClient implements it.
type ObjectAPI interface {
	Create(ctx context.Context, conn salesforce.Connection, objectName string, fields map[string]any) (*salesforce.ObjectResponse, error)
	Update(ctx context.Context, conn salesforce.Connection, objectName, id string, fields map[string]any) (*salesforce.ObjectResponse, error)
	Describe(ctx context.Context, conn salesforce.Connection, objectName string) (*salesforce.ObjectResponse, error)
}

var (
	_ IdentityProvider = (*salesforce.AuthClient)(nil)
	_ ObjectAPI        = (*salesforce.ObjectClient)(nil)
)
