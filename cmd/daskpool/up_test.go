package main

import (
	"testing"

	"github.com/seantiz/daskpool/internal/config"
)

func TestSchedulerPort(t *testing.T) {
	cfg := config.Config{SchedulerPort: 2400}

	tests := []struct {
		name string
		flag int
		want int
	}{
		{"flag unset uses config", 0, 2400},
		{"flag wins", 2500, 2500},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := schedulerPort(tc.flag, cfg); got != tc.want {
				t.Errorf("schedulerPort(%d) = %d, want %d", tc.flag, got, tc.want)
			}
		})
	}
}
