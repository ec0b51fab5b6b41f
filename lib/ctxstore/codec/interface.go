package codec

// IValueCodec is the single boundary at which context values are converted to and from
// the text stored in the remote hash. All implementations produce UTF-8 JSON.
type IValueCodec interface {
	// Name returns the name the codec is selected by (e.g. "json").
	Name() string
	// Encode converts a value into its stored text representation.
	// It returns an error if the value cannot be represented as JSON.
	Encode(value any) (string, error)
	// Decode converts stored text back into a value.
	// Objects decode to map[string]any, arrays to []any and numbers to float64.
	Decode(raw string) (any, error)
}

// ByName returns the codec registered under name.
func ByName(name string) (IValueCodec, bool) {
	switch name {
	case "json":
		return NewJSONCodec(), true
	case "sonic":
		return NewSonicCodec(), true
	default:
		return nil, false
	}
}
