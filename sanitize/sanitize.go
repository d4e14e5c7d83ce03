// Package sanitize post-processes feed results before they leave the server.
package sanitize

// CleanFeedTokens removes the duplicated per-user xsecToken from note items.
// Feed payloads carry the token twice: once at the top level, where callers
// need it for follow-up requests, and once nested under noteCard.user. Only
// items tagged modelType "note" carry the nested copy; everything else
// passes through untouched. Returns how many tokens were removed. Running it
// again over its own output removes nothing.
func CleanFeedTokens(items []map[string]any) int {
	removed := 0
	for _, item := range items {
		if item == nil || item["modelType"] != "note" {
			continue
		}
		card, ok := item["noteCard"].(map[string]any)
		if !ok {
			continue
		}
		user, ok := card["user"].(map[string]any)
		if !ok {
			continue
		}
		if _, ok := user["xsecToken"]; ok {
			delete(user, "xsecToken")
			removed++
		}
	}
	return removed
}
