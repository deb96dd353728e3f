// Package conv provides checked integer conversions.
//
// They guard lengths and counts written to or read from persisted cache
// payloads, where a silent truncation would corrupt the encoding. For
// conversions that are safe by construction, such as loop indices, use
// direct casts.
package conv
