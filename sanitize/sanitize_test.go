package sanitize

import "testing"

func noteItem(id, topToken, userToken string) map[string]any {
	return map[string]any{
		"id":        id,
		"modelType": "note",
		"xsecToken": topToken,
		"noteCard": map[string]any{
			"user": map[string]any{
				"nickName":  "someone",
				"xsecToken": userToken,
			},
		},
	}
}

func TestCleanFeedTokens(t *testing.T) {
	items := []map[string]any{
		noteItem("note001", "top1", "user1"),
		noteItem("note002", "top2", "user2"),
		{"id": "rec001", "modelType": "rec_query"},
	}

	if got := CleanFeedTokens(items); got != 2 {
		t.Fatalf("removed %d tokens, want 2", got)
	}

	for _, item := range items[:2] {
		if item["xsecToken"] == nil {
			t.Fatalf("top-level token must survive: %v", item)
		}
		user := item["noteCard"].(map[string]any)["user"].(map[string]any)
		if _, ok := user["xsecToken"]; ok {
			t.Fatalf("nested token not removed: %v", user)
		}
		if user["nickName"] != "someone" {
			t.Fatalf("unrelated user fields must survive: %v", user)
		}
	}
}

func TestCleanFeedTokensIdempotent(t *testing.T) {
	items := []map[string]any{noteItem("note001", "top", "user")}
	if got := CleanFeedTokens(items); got != 1 {
		t.Fatalf("first pass removed %d, want 1", got)
	}
	if got := CleanFeedTokens(items); got != 0 {
		t.Fatalf("second pass removed %d, want 0", got)
	}
}

func TestCleanFeedTokensSkipsMalformed(t *testing.T) {
	items := []map[string]any{
		nil,
		{"modelType": "note"},
		{"modelType": "note", "noteCard": "not a map"},
		{"modelType": "note", "noteCard": map[string]any{"user": 17}},
	}
	if got := CleanFeedTokens(items); got != 0 {
		t.Fatalf("malformed items removed %d tokens, want 0", got)
	}
}
