package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"monitor/metrics", "monitor/metrics", true},
		{"monitor/events/#", "monitor/events/alert.triggered", true},
		{"monitor/events/#", "monitor/events/a/b", true},
		{"monitor/+/metrics", "monitor/s1/metrics", true},
		{"monitor/+/metrics", "monitor/s1/s2/metrics", false},
		{"monitor/metrics", "monitor/metrics/extra", false},
		{"monitor/metrics/extra", "monitor/metrics", false},
		{"monitor/events/alert.triggered", "monitor/events/alert.resolved", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchTopic(tt.pattern, tt.topic))
		})
	}
}
