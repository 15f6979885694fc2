// Package etcdqueue implements beacon.Backend over etcd's ordered
// keyspace: entries are stored under keys derived from their Timestamp
// and a monotonic sequence, so a plain ranged Get in key order is also
// chronological order.
package etcdqueue
