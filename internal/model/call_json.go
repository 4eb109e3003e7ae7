package model

import (
	"encoding/json"
	"time"
)

// MarshalJSON renders time_received as an ISO-8601 UTC timestamp with
// millisecond precision.
func (c Call) MarshalJSON() ([]byte, error) {
	return json.Marshal(callJSON{
		callAlias:    callAlias(c),
		TimeReceived: c.TimeReceived().Format(TimeLayoutMillis),
	})
}

// UnmarshalJSON accepts the shape produced by MarshalJSON.
func (c *Call) UnmarshalJSON(data []byte) error {
	var aux callJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Call(aux.callAlias)
	if aux.TimeReceived != "" {
		t, err := time.Parse(time.RFC3339Nano, aux.TimeReceived)
		if err != nil {
			return err
		}
		c.SetTimeReceived(t)
	}
	return nil
}

// TimeLayoutMillis is the ISO-8601 layout used for call timestamps.
const TimeLayoutMillis = "2006-01-02T15:04:05.000Z07:00"
