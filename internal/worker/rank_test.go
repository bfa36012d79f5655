package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompetitionRanks(t *testing.T) {
	tests := []struct {
		name   string
		scores []int
		want   []int
	}{
		{"empty", []int{}, []int{}},
		{"single", []int{10}, []int{1}},
		{"distinct", []int{30, 20, 10}, []int{1, 2, 3}},
		{"leading tie skips", []int{100, 100, 90}, []int{1, 1, 3}},
		{"middle tie", []int{50, 40, 40, 30}, []int{1, 2, 2, 4}},
		{"all tied", []int{8, 8, 8}, []int{1, 1, 1}},
		{"long tie", []int{9, 9, 9, 9, 5}, []int{1, 1, 1, 1, 5}},
		{"negative scores", []int{0, -2, -2}, []int{1, 2, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompetitionRanks(tt.scores))
		})
	}
}
