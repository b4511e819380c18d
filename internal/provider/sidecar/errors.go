package sidecar

import "errors"

var errNotUTF8 = errors.New("sidecar file is not valid UTF-8")
