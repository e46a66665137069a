package bot

import (
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

func TestOwnerID(t *testing.T) {
	tests := []struct {
		name   string
		source webhook.SourceInterface
		want   string
	}{
		{"user", webhook.UserSource{UserId: "U1"}, "user:U1"},
		{"group", webhook.GroupSource{GroupId: "G1", UserId: "U1"}, "group:G1"},
		{"room", webhook.RoomSource{RoomId: "R1", UserId: "U1"}, "room:R1"},
		{"unknown", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OwnerID(tt.source); got != tt.want {
				t.Errorf("OwnerID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetChatID(t *testing.T) {
	if got := GetChatID(webhook.GroupSource{GroupId: "G1", UserId: "U1"}); got != "G1" {
		t.Errorf("GetChatID(group) = %q, want G1", got)
	}
	if got := GetChatID(webhook.UserSource{UserId: "U1"}); got != "U1" {
		t.Errorf("GetChatID(user) = %q, want U1", got)
	}
}

func TestGetUserID_GroupReturnsUser(t *testing.T) {
	if got := GetUserID(webhook.GroupSource{GroupId: "G1", UserId: "U1"}); got != "U1" {
		t.Errorf("GetUserID(group) = %q, want U1", got)
	}
}

func TestIsPersonalChat(t *testing.T) {
	if !IsPersonalChat(webhook.UserSource{UserId: "U1"}) {
		t.Error("IsPersonalChat(user) = false")
	}
	if IsPersonalChat(webhook.GroupSource{GroupId: "G1"}) {
		t.Error("IsPersonalChat(group) = true")
	}
}
