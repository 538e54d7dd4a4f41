package config

import "strings"

const (
	clientIDVar      = "AUTH_CLIENT_ID"
	clientSecretVar  = "AUTH_CLIENT_SECRET"
	redirectURIVar   = "AUTH_REDIRECT_URI"
	tenantIDVar      = "AUTH_TENANT_ID"
	authorityHostVar = "AUTH_AUTHORITY_HOST"
	scopesVar        = "AUTH_SCOPES"
	debugAuthVar     = "DEBUG_MSAL_AUTH"

	defaultTenantID = "3e9b8827-39f2-4fb4-9bc1-f8a200aaea79"
)

type IdentityConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetRedirectURI() string
	GetTenantID() string
	GetAuthority() string
	GetScopes() []string
	GetDebugAuth() bool
}

type Identity struct{}

var _ IdentityConfig = Identity{}

func (Identity) GetClientID() string {
	return GetEnv(clientIDVar, "")
}

func (Identity) GetClientSecret() string {
	return GetEnv(clientSecretVar, "")
}

func (Identity) GetRedirectURI() string {
	return GetEnv(redirectURIVar, "")
}

func (Identity) GetTenantID() string {
	return GetEnv(tenantIDVar, defaultTenantID)
}

// GetAuthority returns the issuer base for the configured tenant, e.g.
// https://login.microsoftonline.com/<tenant>
func (i Identity) GetAuthority() string {
	host := strings.TrimSuffix(GetEnv(authorityHostVar, "https://login.microsoftonline.com"), "/")
	return host + "/" + i.GetTenantID()
}

// GetScopes returns the OAuth scopes requested on exchange and refresh (space separated).
func (Identity) GetScopes() []string {
	scopes := strings.Fields(GetEnv(scopesVar, ""))
	if len(scopes) == 0 {
		return []string{"User.Read"}
	}
	return scopes
}

// GetDebugAuth enables verbose logging of provider responses, including PII.
func (Identity) GetDebugAuth() bool {
	return GetEnvBool(debugAuthVar)
}
