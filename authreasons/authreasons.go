package authreasons

const (
	PublicPath           = "public path, authentication skipped"
	MissingCredential    = "no credential in the request"
	MalformedCredential  = "malformed credential"
	ExpiredCredential    = "expired credential"
	InvalidSignature     = "invalid credential signature"
	VerificationTimedOut = "credential verification timed out"
	NotApproved          = "account pending approval"
	RoleNotAuthorized    = "role not authorized for %s path"
	RevokedCredential    = "credential revoked"
	ConditionalAllow     = "conditional allow under redirect-loop guard"
)
