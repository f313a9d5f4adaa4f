package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Document is the persisted subscription document: channel name -> token list.
type Document map[string][]string

// DecodeDocument parses raw storage content.
// Empty or whitespace-only content and any valid non-object JSON value decode to an
// empty document. Syntactically invalid JSON fails with ErrUnableToRead.
func DecodeDocument(raw []byte) (Document, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Document{}, nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: content is not valid json", ErrUnableToRead)
	}
	if trimmed[0] != '{' {
		return Document{}, nil
	}

	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnableToRead, err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// EncodeDocument serializes doc. Channel names and tokens must be valid UTF-8,
// otherwise ErrUnencodableDocument is returned instead of silently replacing bytes.
func EncodeDocument(doc Document) ([]byte, error) {
	for channel, tokens := range doc {
		if !utf8.ValidString(channel) {
			return nil, fmt.Errorf("%w: channel %q", ErrUnencodableDocument, channel)
		}
		for _, t := range tokens {
			if !utf8.ValidString(t) {
				return nil, fmt.Errorf("%w: token in channel %q", ErrUnencodableDocument, channel)
			}
		}
	}
	if doc == nil {
		doc = Document{}
	}
	return json.Marshal(doc)
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = append([]string(nil), v...)
	}
	return out
}
