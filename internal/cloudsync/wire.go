package cloudsync

import "fmt"

// EncodeHeader serializes a header for the reserved HeaderKey entry.
func EncodeHeader(h *Header) (string, error) {
	data, err := jsonMarshalIndent(h.Clone(), "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode header: %w", err)
	}
	return string(data), nil
}

// DecodeHeader reads the header embedded in a bundle. A missing entry decodes
// to an empty header.
func DecodeHeader(files Text) (*Header, error) {
	raw, ok := files[HeaderKey]
	if !ok || raw == "" {
		raw = "{}"
	}
	var h Header
	if err := jsonUnmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	return &h, nil
}

// bundle returns a copy of text carrying the serialized header under HeaderKey.
func bundle(h *Header, text Text) (Text, error) {
	encoded, err := EncodeHeader(h)
	if err != nil {
		return nil, err
	}
	files := text.Clone()
	files[HeaderKey] = encoded
	return files, nil
}
