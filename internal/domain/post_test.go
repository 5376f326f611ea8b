package domain

import "testing"

func TestMentionIndex(t *testing.T) {
	tests := []struct {
		name     string
		mentions []MentionedAccount
		want     map[string]string
		absent   []string
	}{
		{
			name: "local account",
			mentions: []MentionedAccount{
				{Username: "alice", Acct: "alice"},
			},
			want: map[string]string{
				"alice":            "https://local.test/@alice",
				"alice@local.test": "https://local.test/@alice",
			},
		},
		{
			name: "remote account by bare username",
			mentions: []MentionedAccount{
				{Username: "bob", Acct: "bob@remote.test", URL: "https://remote.test/@bob"},
			},
			want: map[string]string{
				"bob@remote.test": "https://remote.test/@bob",
				"bob":             "https://remote.test/@bob",
			},
		},
		{
			name: "shared username keeps full handles only",
			mentions: []MentionedAccount{
				{Username: "bob", Acct: "bob@remote.test", URL: "https://remote.test/@bob"},
				{Username: "Bob", Acct: "bob@other.test", URL: "https://other.test/@bob"},
			},
			want: map[string]string{
				"bob@remote.test": "https://remote.test/@bob",
				"bob@other.test":  "https://other.test/@bob",
			},
			absent: []string{"bob"},
		},
		{
			name: "local username wins over remote namesake",
			mentions: []MentionedAccount{
				{Username: "carol", Acct: "carol"},
				{Username: "carol", Acct: "carol@remote.test"},
			},
			want: map[string]string{
				"carol":             "https://local.test/@carol",
				"carol@remote.test": "https://remote.test/@carol",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := (&Post{Mentions: tt.mentions}).MentionIndex("local.test")
			for k, v := range tt.want {
				if got := idx[k]; got != v {
					t.Errorf("idx[%q] = %q, want %q", k, got, v)
				}
			}
			for _, k := range tt.absent {
				if _, ok := idx[k]; ok {
					t.Errorf("idx[%q] should not be set", k)
				}
			}
		})
	}
}
