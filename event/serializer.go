package event

import "encoding/json"

// Serializer converts an event payload to and from its durable textual
// form. Equal serialized forms must compare equal so the Store can use the
// serialized form as an event-identity key.
type Serializer interface {
	Serialize(event any) (string, error)
	Deserialize(blob string, target any) error
}

// JSONSerializer is the default Serializer, using encoding/json.
type JSONSerializer struct{}

func (JSONSerializer) Serialize(event any) (string, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (JSONSerializer) Deserialize(blob string, target any) error {
	return json.Unmarshal([]byte(blob), target)
}
