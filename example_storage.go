package bamboo

// Storage Backend Comparison
//
// This package provides three Store implementations. All of them keep the
// encoded entry bytes and, when replicated, the payload bytes of every feed.
//
// 1. Memory Storage (store.go)
//    - No persistence
//    - Best for: tests, short-lived replicas
//
// 2. POSIX File Storage (file_store.go)
//    - One append-only binary file per feed
//    - File locking for concurrency
//    - Best for: a single author's own logs
//
// 3. SQLite Storage (sqlite_store.go)
//    - Uses SQLite database with WAL mode
//    - One serializable transaction per append
//    - Best for: replicas holding many feeds
//
// Usage Examples:
//
// === POSIX File Storage ===
//
//   store, err := bamboo.OpenFileStore("/var/lib/bamboo")
//   if err != nil {
//       log.Fatal(err)
//   }
//   w, _ := bamboo.NewWriter(bamboo.Config{Keypair: &kp}, store)
//   w.Publish(0, []byte("event 1"), false)
//
// === SQLite Storage ===
//
//   store, err := bamboo.OpenSQLiteStore("file:replica.db")
//   if err != nil {
//       log.Fatal(err)
//   }
//   r, _ := bamboo.NewReplica(bamboo.Config{}, store)
//   r.Import(bundle)
//
//
// File Format (POSIX storage):
//
//   {author hex}-{log id}.feed format:
//   ┌──────────────────────────────────────────────┐
//   │ Frame 1                                      │
//   ├──────────────────────────────────────────────┤
//   │ [8 bytes] seq num (uint64 big-endian)        │
//   │ [2 bytes] entry length (uint16 big-endian)   │
//   │ [n bytes] encoded entry                      │
//   │ [1 byte]  payload flag                       │
//   │ [8 bytes] payload length (if flag is 1)      │
//   │ [m bytes] payload (if flag is 1)             │
//   ├──────────────────────────────────────────────┤
//   │ Frame 2                                      │
//   │ ...                                          │
//   └──────────────────────────────────────────────┘
//
//
// Migration Between Backends:
//
//   // Export from SQLite
//   src, _ := bamboo.NewReplica(bamboo.Config{}, sqlStore)
//   bundle, _ := src.Export(feed, 1)
//
//   // Import to file storage
//   dst, _ := bamboo.NewReplica(bamboo.Config{}, fileStore)
//   dst.Import(bundle) // every entry is verified again on the way in
//
