package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaffing(t *testing.T) {
	cases := []struct {
		name     string
		active   int
		required int
		want     StaffingState
	}{
		{"no staff needed", 0, 0, StaffingFull},
		{"unstaffed", 0, 2, StaffingEmpty},
		{"half staffed", 1, 2, StaffingPartial},
		{"fully staffed", 2, 2, StaffingFull},
		{"overstaffed", 3, 1, StaffingFull},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Staffing(tc.active, tc.required))
		})
	}
}
