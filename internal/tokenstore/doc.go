// Package tokenstore provides persistent storage abstractions for session tokens.
//
// Supports several storage backends with different security and deployment tradeoffs:
//   - File: Local filesystem storage with atomic writes and secure permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Env: Read-only environment variable access (requires external secret management)
//   - Redis: Shared storage for several processes, paired with RedisLocker
//   - Memory: Process-local storage, mostly for tests
//
// Refreshing a session writes the new access token back, so read-only env storage
// only suits sessions that are never refreshed.
package tokenstore
