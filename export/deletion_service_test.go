package export

import "testing"

func TestIsMessageAndIsAttachment(t *testing.T) {
	tests := []struct {
		key            string
		wantMessage    bool
		wantAttachment bool
	}{
		{"org1/domain1/user1/messages/msg-123.eml", true, false},
		{"org1/domain1/user1/attachments/att-456", false, true},
		{"org1/domain1/exports/job-1.zip", false, false},
	}

	for _, tt := range tests {
		if got := isMessage(tt.key); got != tt.wantMessage {
			t.Errorf("isMessage(%q) = %v, want %v", tt.key, got, tt.wantMessage)
		}
		if got := isAttachment(tt.key); got != tt.wantAttachment {
			t.Errorf("isAttachment(%q) = %v, want %v", tt.key, got, tt.wantAttachment)
		}
	}
}

func TestGetObjectType(t *testing.T) {
	tests := map[string]string{
		"org1/domain1/user1/messages/msg-123.eml": "message",
		"org1/domain1/user1/attachments/att-456":  "attachment",
		"org1/domain1/exports/job-1.zip":          "other",
	}
	for key, want := range tests {
		if got := getObjectType(key); got != want {
			t.Errorf("getObjectType(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestExtractObjectID(t *testing.T) {
	tests := map[string]string{
		"org1/domain1/user1/messages/msg-123.eml": "msg-123.eml",
		"att-456":                                 "att-456",
		"a/b/c/":                                  "a/b/c/",
	}
	for key, want := range tests {
		if got := extractObjectID(key); got != want {
			t.Errorf("extractObjectID(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestExtractUserIDFromKey(t *testing.T) {
	tests := map[string]string{
		"org1/domain1/user1/messages/msg-123.eml": "user1",
		"org1/domain1/user1/attachments/att-456":  "user1",
		"org1/domain1":                            "",
		"":                                        "",
	}
	for key, want := range tests {
		if got := extractUserIDFromKey(key); got != want {
			t.Errorf("extractUserIDFromKey(%q) = %q, want %q", key, got, want)
		}
	}
}
