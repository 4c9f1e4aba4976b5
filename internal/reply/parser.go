// Package reply pulls the ```json fenced block out of a model reply.
package reply

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
)

var (
	// ErrMalformedReply is the parent of every parse failure: the model
	// answered, but not in the expected shape.
	ErrMalformedReply = errors.New("malformed model reply")

	ErrNoJSONBlock = fmt.Errorf("%w: no json code block", ErrMalformedReply)
	ErrInvalidJSON = fmt.Errorf("%w: invalid json in code block", ErrMalformedReply)
)

var jsonBlock = regexp.MustCompile("```json\\r?\\n([\\s\\S]*?)\\r?\\n```")

// ExtractBlock returns the content of the first ```json fenced block.
func ExtractBlock(text string) (string, bool) {
	m := jsonBlock.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Parse decodes the first ```json block of text. Numbers are kept as
// json.Number so they re-encode exactly as the model wrote them.
func Parse(text string) (any, error) {
	block, ok := ExtractBlock(text)
	if !ok {
		return nil, ErrNoJSONBlock
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(block)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after value", ErrInvalidJSON)
	}
	return v, nil
}
