// Package mongodb stores sessions and users in MongoDB.
package mongodb

const (
	SessionsCollection = "sessions"
	UsersCollection    = "users"
)
