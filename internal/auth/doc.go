// Package auth is the verification side of KeyRhythm.
//
// A user is identified by a password and by the rhythm in which it is typed.
// Registration stores a CredentialRecord holding:
//   - an Argon2id password hash (bcrypt hashes from the legacy store are
//     still verified)
//   - the reference timing vector, stored verbatim
//
// Authentication checks, in this order: the record exists, the password
// matches, and every keystroke of the submitted vector lies within
// rhythm.Tolerance of the reference. The first failing check decides the
// result. Each outcome is reported as an Attempt to an optional Recorder.
//
// Username uniqueness is enforced by the store: the credentials table keys
// on username, so of two concurrent registrations exactly one succeeds.
package auth
