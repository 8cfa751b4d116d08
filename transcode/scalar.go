// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package transcode

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/juju/errors"

	"github.com/juju/awscore/schema"
)

// WireString renders a scalar value as wire text, honouring a
// declared timestamp format. The request builder uses this for
// header, URI and query-string members; the XML realizer uses it for
// attribute-located members.
func WireString(t schema.Type, v any, path string) (string, error) {
	nv, err := normalizeScalar(t, v, path)
	if err != nil {
		return "", errors.Trace(err)
	}
	if ts, ok := nv.(time.Time); ok {
		format := schema.DefaultFormat
		if tt, ok := t.(schema.TimestampType); ok {
			format = tt.Format
		}
		switch format {
		case schema.HTTPDate:
			return ts.UTC().Format(http.TimeFormat), nil
		case schema.UnixEpoch:
			return strconv.FormatInt(ts.Unix(), 10), nil
		default:
			return ts.UTC().Format(time.RFC3339), nil
		}
	}
	return scalarText(nv), nil
}

func scalarWireString(t schema.Type, v any, path string) (string, error) {
	return WireString(t, v, path)
}

// scalarText renders a normalized tree scalar as text the way the
// query and XML wire formats expect: booleans as true/false,
// timestamps as ISO8601, binary as base64.
func scalarText(v any) string {
	switch v := v.(type) {
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	default:
		// json.Number and friends from a prior decode pass.
		return fmt.Sprintf("%v", v)
	}
}
