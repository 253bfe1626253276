// Package identity is a self-contained identity and access-control core:
// credential storage, email verification, password reset and role based
// authorization behind a stateless access/refresh token session model.
//
// Credentials:
//   - Passwords are hashed with bcrypt through PasswordHasher. Hashing is
//     bounded by a worker semaphore so a burst of logins can not starve the
//     process.
//   - Single-use tokens (email verification, password reset) come from
//     OneTimeTokens and are consumed by one conditional UPDATE, so a token
//     races to exactly one winner.
//
// Sessions:
//   - TokenService signs access and refresh tokens with separate secrets.
//     A token of one kind never verifies as the other. Tokens are not
//     revocable: deactivating an identity blocks login and refresh, while
//     access tokens already issued stay valid until they expire.
//
// Access control:
//   - Gate turns an Authorization header into an AuthenticatedContext.
//   - Guard checks the context against an allowed RoleSet. Role is a closed
//     type with RoleAdmin and RoleUser as its only values.
//
// Errors:
//   - Every failure crossing the package boundary is a go-errors value whose
//     text code is an ErrorKind. StatusFor maps kinds to HTTP statuses and
//     NewErrorHandler renders them for fiber.
package identity
