package priority

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/cad-ingest/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		incident    string
		description string
		want        model.Priority
	}{
		{"Disturbance", "Disturbance at 100 Main St AND Oak Ave", model.PriorityMedium},
		{"SHOOTING", "", model.PriorityCritical},
		{"Shots  Fired", "", model.PriorityCritical},
		{"Cardiac Arrest", "", model.PriorityCritical},
		{"Robbery - Commercial", "", model.PriorityHigh},
		{"Structure Fire", "", model.PriorityCritical},
		{"Brush Fire", "", model.PriorityHigh},
		{"Noise Complaint", "", model.PriorityLow},
		{"Parking Violation", "", model.PriorityLow},
		{"Larceny", "", model.PriorityMedium},
		{"Unknown Problem", "", model.PriorityMedium},
		{"", "", model.PriorityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.incident, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.incident, tt.description))
		})
	}
}

func TestClassify_WholeWords(t *testing.T) {
	// "shot" must not match inside "Shoplifting", "fire" not inside "Firestone".
	assert.Equal(t, model.PriorityMedium, Classify("Shoplifting", ""))
	assert.Equal(t, model.PriorityMedium, Classify("Alarm", "Alarm at Firestone Dr"))
	assert.Equal(t, model.PriorityMedium, Classify("Assistance", ""))
}

func TestClassify_IncidentBeforeDescription(t *testing.T) {
	assert.Equal(t, model.PriorityLow, Classify("Noise Complaint", "Noise Complaint at 1 Fire Station Rd"))
	assert.Equal(t, model.PriorityHigh, Classify("Call for Service", "Call for Service: Assault reported"))
}

func TestClassify_LocationNeverDecides(t *testing.T) {
	assert.Equal(t, model.PriorityMedium, Classify("Check the Area", "Check the Area at 1200 Shot Tower Rd"))
	assert.Equal(t, model.PriorityMedium, Classify("Check the Area", "check the area at 9 Fire Tower Ln"))
	assert.Equal(t, model.PriorityLow, Classify("Lockout", "Lockout at 40 Robbery Ct"))
}

func TestClassify_Deterministic(t *testing.T) {
	for i := 0; i < 5; i++ {
		assert.Equal(t, model.PriorityHigh, Classify("Domestic", ""))
	}
}
