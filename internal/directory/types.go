package directory

import (
	"encoding/json"

	"github.com/quennel-io/hearthlink/internal/param"
)

// Param is one device parameter in its wire form.
type Param struct {
	ParamType  param.Type `json:"param_type"`
	ParamValue string     `json:"param_value"`
}

// DeviceRecord is the latest raw descriptor of one registered device,
// keyed by its serial number. Records are replaced wholesale on every
// directory refresh.
type DeviceRecord struct {
	Serial        string  `json:"device_sn"`
	Name          string  `json:"device_name"`
	Model         string  `json:"device_model"`
	StationSerial string  `json:"station_sn"`
	DeviceType    int     `json:"device_type"`
	Params        []Param `json:"params"`

	// Raw is the untouched descriptor as returned by the directory
	// endpoint, kept for snapshot persistence and forward compatibility
	// with fields this struct does not model.
	Raw json.RawMessage `json:"-"`
}

// HubRecord is the latest raw descriptor of one registered hub/station.
type HubRecord struct {
	Serial string  `json:"station_sn"`
	Name   string  `json:"station_name"`
	Model  string  `json:"station_model"`
	IP     string  `json:"ip_addr"`
	Params []Param `json:"params"`

	Raw json.RawMessage `json:"-"`
}

// Parameter returns the decoded value of the given parameter type.
func (d DeviceRecord) Parameter(t param.Type) (any, error) {
	for _, p := range d.Params {
		if p.ParamType == t {
			return param.Decode(t, p.ParamValue), nil
		}
	}
	return nil, ErrParamNotFound
}
