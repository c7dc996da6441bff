// Package jwt signs and verifies the login tokens handed out by the session
// registry. A token carries the account id, role and the registry token id
// (jti); signature and expiry are checked locally, revocation is not: the
// session registry decides whether a well-formed token is still current.
package jwt
