// Package device holds the device descriptor that travels with sensor data.
package device

import (
	"fmt"

	"github.com/JobsHwang/LinkIOT/internal/value"
)

// Status is the connection state of a device.
type Status int

const (
	StatusOff Status = iota
	StatusOn
)

func (s Status) String() string {
	switch s {
	case StatusOff:
		return "OFF"
	case StatusOn:
		return "ON"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Sensor is one data channel of a device.
type Sensor struct {
	ID       int
	DataType string
}

// Info describes a logged in device.
type Info struct {
	ID      string
	Name    string
	State   Status
	Token   string
	Config  map[string]any
	Sensors []Sensor
}

// Sensor returns the sensor with id, if the device has one.
func (i *Info) Sensor(id int) (Sensor, bool) {
	for _, s := range i.Sensors {
		if s.ID == id {
			return s, true
		}
	}
	return Sensor{}, false
}

// ToJSON returns the structured form sent over the bus. Config is shared,
// not copied.
func (i *Info) ToJSON() map[string]any {
	sensors := make([]any, 0, len(i.Sensors))
	for _, s := range i.Sensors {
		sensors = append(sensors, map[string]any{
			"id":       s.ID,
			"datatype": s.DataType,
		})
	}
	return map[string]any{
		"id":      i.ID,
		"name":    i.Name,
		"state":   int(i.State),
		"token":   i.Token,
		"config":  i.Config,
		"sensors": sensors,
	}
}

// FromJSON is the inverse of ToJSON. A nil map gives a nil Info.
func FromJSON(m map[string]any) (*Info, error) {
	if m == nil {
		return nil, nil
	}
	var (
		res = &Info{}
		err error
	)
	if res.ID, err = value.String(m["id"]); err != nil {
		return nil, fmt.Errorf("device: id: %w", err)
	}
	if res.Name, err = value.String(m["name"]); err != nil {
		return nil, fmt.Errorf("device: name: %w", err)
	}
	if res.Token, err = value.String(m["token"]); err != nil {
		return nil, fmt.Errorf("device: token: %w", err)
	}
	if state, ok := m["state"]; ok && state != nil {
		s, err := value.Int(state)
		if err != nil {
			return nil, fmt.Errorf("device: state: %w", err)
		}
		res.State = Status(s)
	}
	if res.Config, err = value.Map(m["config"]); err != nil {
		return nil, fmt.Errorf("device: config: %w", err)
	}
	sensors, err := value.Slice(m["sensors"])
	if err != nil {
		return nil, fmt.Errorf("device: sensors: %w", err)
	}
	for idx, item := range sensors {
		sm, err := value.Map(item)
		if err != nil || sm == nil {
			return nil, fmt.Errorf("device: sensors[%d]: expected an object", idx)
		}
		id, err := value.Int(sm["id"])
		if err != nil {
			return nil, fmt.Errorf("device: sensors[%d].id: %w", idx, err)
		}
		dataType, err := value.String(sm["datatype"])
		if err != nil {
			return nil, fmt.Errorf("device: sensors[%d].datatype: %w", idx, err)
		}
		res.Sensors = append(res.Sensors, Sensor{ID: id, DataType: dataType})
	}
	return res, nil
}
