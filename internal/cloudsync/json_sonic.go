//go:build sonic

package cloudsync

import "github.com/bytedance/sonic"

var jsonMarshalIndent = sonic.ConfigStd.MarshalIndent
var jsonUnmarshal = sonic.ConfigStd.Unmarshal
