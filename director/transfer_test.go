package director

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanTransferMarker(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		target   string
		found    bool
	}{
		{
			name:     "double quoted marker",
			fragment: `transfer_to_agent(agent_name="Participant_2")`,
			target:   "Participant_2",
			found:    true,
		},
		{
			name:     "single quoted marker",
			fragment: `transfer_to_agent(agent_name='Participant_1')`,
			target:   "Participant_1",
			found:    true,
		},
		{
			name:     "marker embedded in surrounding prose",
			fragment: "Let me hand this over. transfer_to_agent(agent_name=\"ReviewAgent\") Please wait.",
			target:   "ReviewAgent",
			found:    true,
		},
		{
			name:     "plain text without marker",
			fragment: "The team should adopt weekly retrospectives.",
			found:    false,
		},
		{
			name:     "mention of the function without arguments",
			fragment: "transfer_to_agent()",
			found:    false,
		},
		{
			name:     "empty fragment",
			fragment: "",
			found:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, found := ScanTransferMarker(tt.fragment)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.target, target)
		})
	}
}
