//go:build !sonic

package cloudsync

import "github.com/goccy/go-json"

var jsonMarshalIndent = json.MarshalIndent
var jsonUnmarshal = json.Unmarshal
