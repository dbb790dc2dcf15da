// Package common contains shared constants and sentinel errors used across
// silosync components.
package common

// SessionCookieName is the cookie carrying the signed session token on
// requests to the remote API.
const SessionCookieName = "session"

// TempIDPrefix marks identifiers minted locally for records that the server
// has not assigned a permanent id to yet.
const TempIDPrefix = "temp_"
