package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a bound value libinjection flagged.
type InjectionCheckResult struct {
	IsSQLi      bool
	Fingerprint string // libinjection token fingerprint, e.g. "s&1c"
	ParamName   string // placeholder, $N
	ParamValue  any
}

// CheckParameterForInjection returns a result when libinjection flags value,
// or nil when it looks clean.
//
// Bound parameters can never change the statement's structure, so a hit here
// is a signal about the client rather than a vulnerability. Only string values
// (and the items of string lists) are checked; numbers and nil are skipped.
//
// Example:
//
//	result := CheckParameterForInjection("$1", "'; DROP TABLE users--")
//	// result.IsSQLi == true
//	// result.ParamName == "$1"
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	switch v := value.(type) {
	case string:
		if isSQLi, fingerprint := libinjection.IsSQLi(v); isSQLi {
			return &InjectionCheckResult{
				IsSQLi:      true,
				Fingerprint: string(fingerprint),
				ParamName:   paramName,
				ParamValue:  value,
			}
		}
	case []string:
		for _, item := range v {
			if result := CheckParameterForInjection(paramName, item); result != nil {
				return result
			}
		}
	}

	return nil
}
