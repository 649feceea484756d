package tools

import "errors"

// ErrUnknownTool is returned by Registry.Dispatch when the model asks
// for a tool that was never registered.
var ErrUnknownTool = errors.New("unknown tool")
