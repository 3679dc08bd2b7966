// Package sync orchestrates push, pull and status between the local
// assistant configs and the encrypted remote document.
//
// # Push
//
// Push collects every installed provider, compares the combined hashes with
// the last recorded SyncState and, when something changed, uploads a fresh
// encrypted V2 payload:
//
//	s := sync.New(sync.Deps{
//	    Providers:  registry,
//	    Remote:     gist.NewRetrying(client, 3),
//	    State:      state.NewStore(util.AgentsyncStatePath()),
//	    Contexts:   contexts.NewStore(util.AgentsyncContextsPath(), 50),
//	    Passphrase: creds.Passphrase,
//	})
//	res, err := s.Push(ctx, sync.PushOptions{})
//
// A push with nothing new makes no remote calls at all.
//
// # Pull
//
// Pull is additive: remote files are created or, after confirmation,
// overwrite differing local files. Local-only files are never deleted.
// Plan computes the same diff without writing anything.
//
// # Errors
//
// Failures are reported as *Error carrying a Kind (auth, decryption,
// transport, storage, conflict, schema) and a recovery Suggestion. SyncState
// is only written after a push or pull fully succeeds.
package sync
