// Package rediskv implements beacon.Backend over a single Redis key holding
// a JSON-encoded array plus a version counter, read-modify-written under a
// redsync distributed mutex — the synchronous-kv counterpart to etcdqueue's
// ordered log.
package rediskv
