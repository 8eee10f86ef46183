// Package bamboo implements the core of the bamboo append-only log format:
// signed, hash-linked entries with lipmaa skip links.
package bamboo

// Example: Publishing and Verifying a Feed
//
// Every entry names its author, its log id and its sequence number, and
// carries the hash of its payload, a backlink to the previous entry and, at
// some positions, a lipmaa link that skips further back. Any entry can be
// proven to belong to a log by following O(log n) lipmaa links to entry 1.
//
// Security Properties:
// 1. Authenticity: every entry is ed25519-signed by its author
// 2. Append-only: each entry commits to the hash of its predecessor
// 3. Partial replication: a peer can verify an entry from its certificate
//    pool alone, without the rest of the log
// 4. Closable: an end-of-feed entry forbids any later entry on the log
//
// Usage:
//   // 1. The author publishes entries through a Writer
//   kp, _ := bamboo.KeypairFromSeed(seed)
//   w, _ := bamboo.NewWriter(bamboo.Config{Keypair: &kp}, store)
//   first, _ := w.Publish(0, []byte("hello"), false)
//   second, _ := w.Publish(0, []byte("world"), false)
//
//   // 2. Without any stored state, the core checks one entry at a time
//   err := bamboo.VerifyBytes(second, []byte("world"), first, nil)
//
//   // 3. A Replica verifies entries against what it already holds
//   r, _ := bamboo.NewReplica(bamboo.Config{}, peerStore)
//   r.Add(first, []byte("hello"))
//   r.Add(second, nil) // payload not replicated
//
//   // 4. The author closes the log for good
//   w.Close(0, []byte("goodbye"))
//
// Attack Scenarios:
//
// Scenario 1: A peer rewrites a payload
//   - The payload no longer hashes to the signed payload hash
//   - Result: VerifyPayloadHashDidNotMatch
//
// Scenario 2: The author forks a log by signing two entries at one position
//   - Each entry verifies on its own
//   - Result: a Replica that holds one refuses the other with ErrConflict
//
// Scenario 3: An entry is appended after the end of the feed
//   - Publish refuses with PublishAfterEndOfFeed
//   - A hand-built entry is refused by Verify with VerifyPublishedAfterEndOfFeed
//
