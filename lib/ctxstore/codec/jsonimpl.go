package codec

import (
	"encoding/json"
)

// NewJSONCodec creates a new codec using the json encoding of the standard library
func NewJSONCodec() IValueCodec {
	return &jsonCodecImpl{}
}

// jsonCodecImpl implements the IValueCodec interface using encoding/json
type jsonCodecImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.IValueCodec)
// --------------------------------------------------------------------------

func (j jsonCodecImpl) Name() string {
	return "json"
}

func (j jsonCodecImpl) Encode(value any) (string, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (j jsonCodecImpl) Decode(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}
