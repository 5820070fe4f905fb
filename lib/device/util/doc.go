// Package util provides hashing and statistics helpers shared by the device
// engines: random seed generation, seeded FNV-1a hashing of key bytes for
// shard distribution, and basic distribution statistics used to verify that
// keys spread evenly across shards.
package util
