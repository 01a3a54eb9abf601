package domain

// Tenant is the authenticated caller of a request. It is produced by the
// credential verifier and passed explicitly to every downstream service.
type Tenant struct {
	KeyID     string
	CompanyID string
	RateLimit *int // requests per minute; nil uses the server default
	Active    bool
}

// TenantFromKey builds the request identity for an API key row.
func TenantFromKey(k *APIKey) Tenant {
	return Tenant{
		KeyID:     k.ID,
		CompanyID: k.CompanyID,
		RateLimit: k.RateLimit,
		Active:    k.IsActive,
	}
}
