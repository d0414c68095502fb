// Package workspace discovers VS Code workspace storage directories and
// describes the chat sessions each one holds.
//
// Every workspace lives under the storage root as a directory named by an
// opaque hash. It contains workspace.json (what was opened), chatSessions/
// (one file per session) and state.vscdb (the host's key/value store with
// the session index).
//
// Discovery is read-only. Recovery copies session files between
// workspaces but never overwrites an existing file.
package workspace
