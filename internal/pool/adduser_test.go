package pool

import "testing"

func TestParseSourceLink(t *testing.T) {
	cases := []struct {
		in        string
		channelID int64
		postID    int64
		ok        bool
	}{
		{"https://t.me/c/1234567890/42", 1234567890, 42, true},
		{"http://t.me/c/55/7", 55, 7, true},
		{"t.me/c/55/7", 55, 7, true},
		{"https://t.me/c/55/7/", 55, 7, true},
		{"https://t.me/somechannel/42", 0, 0, false}, // public username link
		{"https://t.me/c/abc/7", 0, 0, false},
		{"https://t.me/c/55", 0, 0, false},
		{"", 0, 0, false},
		{"https://example.com/c/55/7", 0, 0, false},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			channelID, postID, ok := parseSourceLink(c.in)
			if ok != c.ok || channelID != c.channelID || postID != c.postID {
				t.Errorf("parseSourceLink(%q) = (%d, %d, %v), want (%d, %d, %v)",
					c.in, channelID, postID, ok, c.channelID, c.postID, c.ok)
			}
		})
	}
}
