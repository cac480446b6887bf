package tv

import "testing"

func TestValidKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"KEY_POWER", true},
		{"KEY_VOLUP", true},
		{"KEY_HDMI2", true},
		{"KEY_16_9", true},
		{"", false},
		{"KEY_", false},
		{"POWER", false},
		{"key_power", false},
		{"KEY_VOL UP", false},
		{"KEY_VOL;DROP", false},
	}
	for _, tt := range tests {
		if got := ValidKey(tt.key); got != tt.want {
			t.Errorf("ValidKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestSourceKeyResolution(t *testing.T) {
	tests := []struct {
		name    string
		wantKey string
		wantOK  bool
	}{
		{"TV", KeyTV, true},
		{"HDMI2", KeyHDMI2, true},
		{"hdmi2", KeyHDMI2, true},
		{" HDMI1 ", KeyHDMI1, true},
		{"Netflix", "", false},
	}
	for _, tt := range tests {
		key, ok := sourceKey(tt.name)
		if key != tt.wantKey || ok != tt.wantOK {
			t.Errorf("sourceKey(%q) = (%q, %v), want (%q, %v)",
				tt.name, key, ok, tt.wantKey, tt.wantOK)
		}
	}
}
