package media

import "errors"

// ErrDownloadFailed indicates the image source returned a non-success status.
var ErrDownloadFailed = errors.New("image download failed")
