package learning

import "testing"

func TestDetectIntents(t *testing.T) {
	tests := []struct {
		message    string
		capability string
		confidence float64
	}{
		{"learn how to use Canva", "Canva", 0.95},
		{"Can you learn how to use Canva?", "Canva", 0.95},
		{"integrate with Stripe", "Stripe", 0.9},
		{"add Spotify integration", "Spotify", 0.9},
		{"connect to GitHub", "GitHub", 0.9},
		{"can you connect to GitHub?", "GitHub", 0.7},
		{"can you use the Notion API", "The Notion", 0.7},
		{"set up Twilio", "Twilio", 0.85},
		{"i want you to use DeepL", "DeepL", 0.75},
	}
	for _, tt := range tests {
		intent := Detect(tt.message)
		if intent == nil {
			t.Errorf("Detect(%q) = nil", tt.message)
			continue
		}
		if intent.Capability != tt.capability {
			t.Errorf("Detect(%q).Capability = %q, want %q", tt.message, intent.Capability, tt.capability)
		}
		if intent.Confidence != tt.confidence {
			t.Errorf("Detect(%q).Confidence = %v, want %v", tt.message, intent.Confidence, tt.confidence)
		}
	}
}

func TestDetectPoliteFormKeepsLowerConfidence(t *testing.T) {
	// "can you connect to" must not be swallowed by the bare "connect to"
	// rule at 0.9.
	intent := Detect("can you connect to Slack")
	if intent == nil {
		t.Fatal("no intent detected")
	}
	if intent.Confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7", intent.Confidence)
	}
}

func TestDetectNoIntent(t *testing.T) {
	for _, message := range []string{
		"what time is it in Tokyo",
		"log expense 30 dollars",
		"tell me a joke",
		"",
	} {
		if intent := Detect(message); intent != nil {
			t.Errorf("Detect(%q) = %+v, want nil", message, intent)
		}
	}
}

func TestDetectRejectsOverlongCapability(t *testing.T) {
	long := "learn how to use "
	for i := 0; i < 30; i++ {
		long += "something "
	}
	if intent := Detect(long); intent != nil {
		t.Errorf("overlong capability accepted: %+v", intent)
	}
}

func TestCleanCapability(t *testing.T) {
	tests := []struct{ in, want string }{
		{"the stripe api", "The Stripe"},
		{"canva integration", "Canva"},
		{"  spotify  ", "Spotify"},
		{"weather service", "Weather"},
		{"stripe api.", "Stripe"},
	}
	for _, tt := range tests {
		if got := CleanCapability(tt.in); got != tt.want {
			t.Errorf("CleanCapability(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLooksLikeServiceName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Canva", true},
		{"Google Calendar", true},
		{"Tell Jokes", false},
		{"Track My Daily Water Intake Every Morning", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := LooksLikeServiceName(tt.name); got != tt.want {
			t.Errorf("LooksLikeServiceName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
