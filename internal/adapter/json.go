package adapter

import (
	"encoding/json"
)

// JSON wraps message encoding so publishers can be tested without real
// serialization
//
//go:generate mockgen -source=json.go -destination=../mocks/json.go -package=mocks -mock_names=JSON=MockJSON
type JSON interface {
	// Marshal encodes v as a JSON payload
	Marshal(v interface{}) ([]byte, error)
	// Unmarshal decodes a JSON payload into v
	Unmarshal(data []byte, v interface{}) error
}

// RealJSON is the encoding/json backed implementation
type RealJSON struct{}

// NewJSON creates a JSON codec backed by encoding/json
func NewJSON() JSON {
	return &RealJSON{}
}

func (j *RealJSON) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (j *RealJSON) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
