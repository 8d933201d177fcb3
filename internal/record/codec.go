package record

import (
	"encoding/json"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/codec"
)

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields())
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var f Fields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = FromFields(f)
	return nil
}

func (r Record) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(r.Fields())
}

func (r *Record) UnmarshalCBOR(data []byte) error {
	var f Fields
	if err := codec.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = FromFields(f)
	return nil
}
