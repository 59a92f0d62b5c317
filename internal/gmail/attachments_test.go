package gmail

import (
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{
			name:     "normal filename unchanged",
			filename: "document.pdf",
			want:     "document.pdf",
		},
		{
			name:     "path traversal neutralized",
			filename: "../../../etc/passwd",
			want:     "______etc_passwd",
		},
		{
			name:     "forward slashes replaced",
			filename: "path/to/file.txt",
			want:     "path_to_file.txt",
		},
		{
			name:     "backslashes replaced",
			filename: "path\\to\\file.txt",
			want:     "path_to_file.txt",
		},
		{
			name:     "empty filename",
			filename: "",
			want:     "",
		},
		{
			name:     "dots inside name preserved",
			filename: "archive.tar.gz",
			want:     "archive.tar.gz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.filename); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}

func TestWalkNodes(t *testing.T) {
	tree := &MessageNode{
		PartID:   "0",
		MimeType: "multipart/mixed",
		Parts: []*MessageNode{
			{PartID: "0.0", MimeType: "text/plain"},
			{
				PartID:   "0.1",
				MimeType: "multipart/alternative",
				Parts: []*MessageNode{
					{PartID: "0.1.0", MimeType: "text/plain"},
					{PartID: "0.1.1", MimeType: "text/html"},
				},
			},
			{
				PartID:   "0.2",
				Filename: "file.pdf",
				MimeType: "application/pdf",
				Body:     &NodeBody{AttachmentID: "att1", Size: 100},
			},
		},
	}

	var visited []string
	walkNodes(tree, func(n *MessageNode) {
		visited = append(visited, n.PartID)
	})

	want := []string{"0", "0.0", "0.1", "0.1.0", "0.1.1", "0.2"}
	if len(visited) != len(want) {
		t.Fatalf("visited %d nodes, want %d: %v", len(visited), len(want), visited)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("visit order[%d] = %q, want %q (pre-order)", i, visited[i], want[i])
		}
	}

	// nil root is a no-op.
	called := false
	walkNodes(nil, func(*MessageNode) { called = true })
	if called {
		t.Error("walkNodes(nil) must not invoke the callback")
	}
}
