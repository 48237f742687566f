package mqttclient

import "testing"

func TestJoinTopic(t *testing.T) {
	cases := []struct {
		base, sub, want string
	}{
		{"security-vision/cam-scout", TopicDiscovery, "security-vision/cam-scout/discovery"},
		{"security-vision/cam-scout", "/" + TopicLocks, "security-vision/cam-scout/analysis/locks"},
		{"", TopicStatus, "status"},
		{"base", "", "base"},
	}
	for _, tc := range cases {
		if got := JoinTopic(tc.base, tc.sub); got != tc.want {
			t.Errorf("JoinTopic(%q, %q) = %q, want %q", tc.base, tc.sub, got, tc.want)
		}
	}
}
