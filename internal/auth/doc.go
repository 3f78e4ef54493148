// Package auth issues and validates observer access tokens.
//
// Observers (dashboards, monitoring clients) authenticate to the WebSocket
// and REST surfaces with short-lived HS256 JWTs obtained from the token
// endpoint using the operator API key. Producer devices do not use JWTs;
// they authenticate with their provisioned key and salt through the device
// directory.
//
// Tokens are validated by signature and expiry only. There is no token
// store and no revocation; keep the TTL short.
package auth
