//go:build !sonic

package restapi

import "github.com/goccy/go-json"

// for imroc/req
var jsonMarshal = json.Marshal
var jsonUnmarshal = json.Unmarshal
