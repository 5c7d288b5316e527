// Package password turns plain-text credentials into one-way hashes and
// checks candidates against them.
//
// Two algorithms are available: Bcrypt (the default) and Argon2 (argon2id,
// PHC-encoded). Pool bounds how many hash computations run at the same
// time so a burst of logins cannot starve the request goroutines.
package password
