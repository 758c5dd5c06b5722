// Package artifacts stores error screenshots in blob storage.
//
// The destination is a gocloud.dev bucket URL (s3://, file://, mem://). After
// a write the store returns a signed URL when the driver supports signing and
// the plain object URL otherwise, so a failure report always carries a link.
package artifacts
