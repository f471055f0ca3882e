package database

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// normalizeValue converts driver types that do not encode to the JSON a
// client expects. uuid columns arrive as [16]byte and numeric as
// pgtype.Numeric.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if val.NaN {
			return "NaN"
		}
		if val.InfinityModifier != pgtype.Finite {
			return val.InfinityModifier.String()
		}
		b, err := val.MarshalJSON()
		if err != nil {
			return val
		}
		return json.Number(b)
	case []byte:
		return string(val)
	case []any:
		for i := range val {
			val[i] = normalizeValue(val[i])
		}
		return val
	default:
		return v
	}
}
