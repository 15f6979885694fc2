// Package beacon delivers opaque POST payloads to a collection endpoint
// despite transient network failures, hostile response codes, and process
// teardown.
//
// Typical flow:
//  1. Build a Transport and a Backend (etcdqueue or rediskv), then call New
//     to get a Client.
//  2. Call Client.Beacon for each payload; it runs an in-process retry loop
//     and falls back to the shared persistence Queue when retries are
//     exhausted or the response demands it.
//  3. A beacon that delivers successfully notifies the Queue, which drains
//     previously persisted entries in the background.
//
// For the etcd-backed ordered-log implementation, see the etcdqueue
// package. For the Redis-backed synchronous-kv implementation, see the
// rediskv package.
package beacon
