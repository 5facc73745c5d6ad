package sdk

import (
	"fmt"

	"github.com/goccy/go-json"
)

// decodeResponse parses a structured body into out. Failures are
// ErrorTypeDecode and are never retried.
func decodeResponse(operation string, body []byte, out interface{}) error {
	if len(body) == 0 {
		err := NewError(ErrorTypeDecode, "empty response body", nil)
		err.Operation = operation
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		decodeErr := NewError(ErrorTypeDecode, fmt.Sprintf("failed to decode %s response: %v", operation, err), err)
		decodeErr.Operation = operation
		return decodeErr
	}
	return nil
}
