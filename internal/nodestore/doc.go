// Package nodestore persists the node's durable local state in SQLite.
//
// Two things live here: the node identity (a uuid created on first start and
// reused forever after, optionally imported from a legacy rpa_uuid.json file)
// and a journal of flow runs used by the CLI and the status API.
//
// Schema changes bump schemaVersion in schema.go; operators delete the
// database to adopt a new schema. The identity row is the only data that
// must survive, so a mismatch error names the legacy import path as the way
// to carry the uuid across.
package nodestore
