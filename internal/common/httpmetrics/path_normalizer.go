package httpmetrics

// knownPaths bounds the path label to routes the ops mux actually serves.
var knownPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

func NormalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return "other"
}
