// Package magazine implements the content store behind the college magazine
// portal: news, events and gallery records with optional attached images,
// student accounts, and the event registration ledger.
//
// Storage is split in two pluggable layers. A RecordStore persists schemaless
// documents in named collections; a BlobStore persists image bytes with their
// metadata. Implementations live under repo/ (memory, Postgres, MongoDB) and
// storage/ (memory, filesystem, S3, GridFS).
//
// # Ownership
//
// A record owns at most one blob through its image_id field. ContentManager is
// the only component that creates or destroys that relationship: replacing a
// record's image deletes the previous blob, deleting a record deletes its
// blob. Blobs are written before the record that references them, so a record
// never points at a blob that was not stored; a crash between the two steps can
// leave an unreferenced blob behind.
package magazine
