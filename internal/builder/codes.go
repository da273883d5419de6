package builder

// exitMessages maps cargo exit codes to their conventional meanings
var exitMessages = map[int]string{
	0:   "success",
	1:   "usage or argument error",
	101: "cargo reported an error",
}

// ExitMessage returns the meaning of a cargo exit code, or a generic
// message if unknown
func ExitMessage(code int) string {
	if msg, ok := exitMessages[code]; ok {
		return msg
	}

	return "unknown error"
}
