package models

import "testing"

func TestStage_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		stage Stage
		want  bool
	}{
		{"dev is valid", StageDev, true},
		{"stage is valid", StageStage, true},
		{"prod is valid", StageProd, true},
		{"invalid stage", Stage("invalid"), false},
		{"empty stage", Stage(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stage.IsValid(); got != tt.want {
				t.Errorf("Stage.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}
