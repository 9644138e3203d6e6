package composer

import "errors"

// ErrGenerationFailed indicates the provider could not produce a draft.
// Compose recovers from it internally by falling back to approved text.
var ErrGenerationFailed = errors.New("reply generation failed")
