package notifier

import "testing"

func TestMethodURL(t *testing.T) {
	tn := &TelegramNotifier{BotToken: "123:abc"}
	want := "https://api.telegram.org/bot123:abc/getUpdates"
	if got := tn.methodURL("getUpdates"); got != want {
		t.Errorf("methodURL = %q, want %q", got, want)
	}
}
