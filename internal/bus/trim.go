package bus

import (
	"encoding/json"

	"kakioki/internal/domain"
)

// DefaultPayloadCeiling is the largest encoded message event published as is.
const DefaultPayloadCeiling = 63000

// TrimMessageEvent encodes evt for publishing. An event that fits under
// ceiling is sent whole with hasFullMetadata set. Otherwise attachment
// descriptors are dropped, and if that is not enough the metadata is
// emptied; both cases clear hasFullMetadata. trimmed reports which path ran.
func TrimMessageEvent(evt domain.MessageEvent, ceiling int) (payload []byte, trimmed bool, err error) {
	if ceiling <= 0 {
		ceiling = DefaultPayloadCeiling
	}
	evt.Type = domain.EventMessage

	base := evt
	if base.HasFullMetadata == nil {
		base.HasFullMetadata = boolPtr(true)
	}
	payload, err = json.Marshal(base)
	if err != nil || len(payload) <= ceiling {
		return payload, false, err
	}

	partial := evt
	partial.HasFullMetadata = boolPtr(false)
	partial.Metadata = evt.Metadata.Clone()
	if len(partial.Metadata.Media) > 0 {
		partial.Metadata.Media = []domain.EncryptedMediaDescriptor{}
	}
	payload, err = json.Marshal(partial)
	if err != nil || len(payload) <= ceiling {
		return payload, true, err
	}

	partial.Metadata = domain.MessageMetadata{}
	payload, err = json.Marshal(partial)
	return payload, true, err
}

func boolPtr(v bool) *bool { return &v }
