// Package codec provides the value encoding used by the context stores. Values are
// JSON-encoded exactly once before they are written to a scope and decoded exactly once
// after they are read, so no store implementation deals with encodings itself.
//
// Key Components:
//
//   - IValueCodec: Core interface that all codec implementations must satisfy.
//
//   - jsonCodecImpl: Implementation using encoding/json. This is the default and the
//     reference for the stored representation.
//
//   - sonicCodecImpl: Implementation using bytedance/sonic in its std-compatible
//     configuration. It produces the same text as the json codec but is faster for
//     large values on supported platforms.
//
// Both implementations are stateless and safe for concurrent use.
//
// Usage:
//
//	c := codec.NewJSONCodec()
//	raw, err := c.Encode(map[string]any{"step": 3})
//	// ... store raw ...
//	v, err := c.Decode(raw)
package codec
