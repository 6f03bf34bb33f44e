// Package secrets provides the secret storage used to persist SSO sessions.
//
// Storage is a small key/value abstraction with change notification. Two
// implementations exist:
//
//   - MemoryStorage keeps values in a map. It is used by tests and by
//     callers that do not want anything written to disk.
//   - FileStorage keeps one encrypted file per key. Values are sealed with
//     XChaCha20-Poly1305 under a random master key stored next to them.
//     Watch starts an fsnotify watcher so that edits made by another
//     process (a second CLI invocation, for example) reach OnDidChange
//     listeners.
//
// SECURITY: values are never logged. Files are created 0600 inside a 0700
// directory.
package secrets
