// Package auth resolves caller identity from HS256 JWT bearer tokens.
//
// The authorization core trusts the user id it is given; this package is the
// piece that produces it. A token's subject claim is the user id.
//
//	tm, err := auth.NewTokenManager(secret, "accessplane")
//	token, err := tm.IssueToken("user-42", time.Hour, "Ada", "ada@example.com")
//	authCtx, err := tm.ValidateToken(token)
//	authCtx.UserID // "user-42"
//
// Tokens must carry an expiry and, when the manager has one, the matching
// issuer. Only HS256 is accepted.
package auth
