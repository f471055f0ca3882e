// Package jsonutil decodes JSON request bodies for writes.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ekaya-inc/ekaya-rest/pkg/apperrors"
)

// DecodeRows decodes a write body into rows. An object is one row; an
// array must contain only objects. Numbers decode as json.Number so large
// integers and exact decimals reach the database unchanged.
func DecodeRows(body []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, apperrors.InvalidBody(apperrors.ErrMissingBody)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, apperrors.Newf(http.StatusBadRequest, apperrors.CodeInvalidBody, apperrors.ErrInvalidBody,
			fmt.Sprintf("invalid JSON body: %v", err))
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, apperrors.Newf(http.StatusBadRequest, apperrors.CodeInvalidBody, apperrors.ErrInvalidBody,
			"unexpected data after JSON body")
	}

	switch v := raw.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		rows := make([]map[string]any, 0, len(v))
		for i, item := range v {
			row, ok := item.(map[string]any)
			if !ok {
				return nil, apperrors.Newf(http.StatusBadRequest, apperrors.CodeInvalidBody, apperrors.ErrInvalidBody,
					fmt.Sprintf("element %d of the body array is not an object", i))
			}
			rows = append(rows, row)
		}
		return rows, nil
	default:
		return nil, apperrors.InvalidBody(apperrors.ErrInvalidBody)
	}
}
