package codec

import (
	"github.com/bytedance/sonic"
)

// NewSonicCodec creates a new codec using bytedance/sonic configured to be compatible
// with encoding/json (sorted map keys, escaped HTML, valid UTF-8).
func NewSonicCodec() IValueCodec {
	return &sonicCodecImpl{api: sonic.ConfigStd}
}

// sonicCodecImpl implements the IValueCodec interface using sonic
type sonicCodecImpl struct {
	api sonic.API
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.IValueCodec)
// --------------------------------------------------------------------------

func (s sonicCodecImpl) Name() string {
	return "sonic"
}

func (s sonicCodecImpl) Encode(value any) (string, error) {
	return s.api.MarshalToString(value)
}

func (s sonicCodecImpl) Decode(raw string) (any, error) {
	var v any
	if err := s.api.UnmarshalFromString(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
