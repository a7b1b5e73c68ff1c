// Package auth verifies bearer tokens at the HTTP boundary.
//
// Tokens are HMAC-signed JWTs issued by the identity provider. The token
// subject becomes the user id every other component is keyed by; handlers
// read it with SubjectFromContext.
package auth
