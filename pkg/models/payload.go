package models

// BinaryPayload is a tagged binary value: raw bytes carried as base64 text
// alongside their declared content type. Tool executions that return files
// produce these instead of structured JSON.
type BinaryPayload struct {
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}

// BinaryPayloadFrom recognizes a decoded JSON value as a BinaryPayload.
// Results arriving through a JSON hop lose their Go type, so both the
// concrete struct and the equivalent map shape are accepted.
func BinaryPayloadFrom(v interface{}) (*BinaryPayload, bool) {
	switch p := v.(type) {
	case *BinaryPayload:
		if p == nil {
			return nil, false
		}
		return p, true
	case BinaryPayload:
		return &p, true
	case map[string]interface{}:
		ct, ok1 := p["content_type"].(string)
		data, ok2 := p["data"].(string)
		if !ok1 || !ok2 || ct == "" {
			return nil, false
		}
		return &BinaryPayload{ContentType: ct, Data: data}, true
	default:
		return nil, false
	}
}
