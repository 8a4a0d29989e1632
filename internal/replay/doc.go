// Package replay runs recorded key-event scripts through the capture engine
// and submits the resulting vector to a running server.
//
// A script is YAML:
//
//	server: http://localhost:5000
//	mode: register
//	username: alice
//	password: abc
//	confirm: abc
//	keystrokes:
//	  - {field: password, key: a, at: 0, up: 80}
//	  - {field: password, key: b, at: 210}
//	  - {field: password, key: c, at: 430}
//	  - {field: confirm, key: a, at: 0}
//	  - {field: confirm, key: b, at: 190}
//	  - {field: confirm, key: c, at: 450}
//
// at and up are milliseconds from the start of the script. A missing up
// releases the key immediately after it is pressed.
package replay
