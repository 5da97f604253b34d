package flower

import "strings"

// Parameter names a value a sensor can report.
type Parameter string

const (
	ParameterBattery         Parameter = "battery"
	ParameterTemperature     Parameter = "temperature"
	ParameterAirTemperature  Parameter = "air_temperature"
	ParameterSoilTemperature Parameter = "soil_temperature"
	ParameterMoisture        Parameter = "moisture"
	ParameterLight           Parameter = "light"
	ParameterConductivity    Parameter = "conductivity"
)

// Characteristic handles shared by both hardware revisions.
//
//	gatttool --device=A0:14:3D:XX:XX:XX --char-desc -a 0x03 --adapter=hci0
const (
	HandleName    uint16 = 0x03
	HandleVersion uint16 = 0x18

	HandleBattery         uint16 = 0x4B
	HandleTemperature     uint16 = 0x44
	HandleMoisture        uint16 = 0x41
	HandleLight           uint16 = 0x47
	HandleConductivity    uint16 = 0x31
	HandleSoilTemperature uint16 = 0x34
)

// Binding ties a parameter to the handle it is read from and its decoder.
type Binding struct {
	Parameter Parameter
	Handle    uint16
	Decode    DecodeFunc
}

// Profile describes one hardware revision. Profiles are read-only after
// construction; Parameters is read in order during a refresh.
type Profile struct {
	Model             string
	NameHandle        uint16
	VersionHandle     uint16
	BatteryHandle     uint16
	NameTrailingStrip int
	Parameters        []Binding
}

// ProfileFlowerPower is the original Flower Power sensor.
var ProfileFlowerPower = &Profile{
	Model:             "flower power",
	NameHandle:        HandleName,
	VersionHandle:     HandleVersion,
	BatteryHandle:     HandleBattery,
	NameTrailingStrip: 0,
	Parameters: []Binding{
		{ParameterBattery, HandleBattery, uint8Value},
		{ParameterTemperature, HandleTemperature, float32Rounded(1)},
		{ParameterMoisture, HandleMoisture, float32Rounded(1)},
		{ParameterLight, HandleLight, float32Rounded(1)},
		{ParameterConductivity, HandleConductivity, uint16Value},
	},
}

// ProfilePot is the Parrot Pot. Its name characteristic carries a 3 byte
// suffix and soil temperature is reported as a raw code.
var ProfilePot = &Profile{
	Model:             "parrot pot",
	NameHandle:        HandleName,
	VersionHandle:     HandleVersion,
	BatteryHandle:     HandleBattery,
	NameTrailingStrip: 3,
	Parameters: []Binding{
		{ParameterBattery, HandleBattery, uint8Value},
		{ParameterAirTemperature, HandleTemperature, float32Rounded(1)},
		{ParameterSoilTemperature, HandleSoilTemperature, soilTemperature},
		{ParameterMoisture, HandleMoisture, float32Rounded(0)},
		{ParameterLight, HandleLight, float32Rounded(2)},
		{ParameterConductivity, HandleConductivity, uint16Value},
	},
}

// Profiles lists the known hardware revisions.
var Profiles = []*Profile{ProfileFlowerPower, ProfilePot}

// ProfileForName picks a profile from an advertised or configured name.
// Matching is case-insensitive; "pot" is accepted as a short form.
func ProfileForName(name string) (*Profile, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "pot":
		return ProfilePot, true
	case "flower", "flowerpower":
		return ProfileFlowerPower, true
	}
	for _, p := range Profiles {
		if n == p.Model {
			return p, true
		}
	}
	return nil, false
}

// Has reports whether p is part of the profile's parameter set.
func (pr *Profile) Has(p Parameter) bool {
	for _, b := range pr.Parameters {
		if b.Parameter == p {
			return true
		}
	}
	return false
}

// ParameterNames returns the profile's parameters in read order.
func (pr *Profile) ParameterNames() []Parameter {
	out := make([]Parameter, 0, len(pr.Parameters))
	for _, b := range pr.Parameters {
		out = append(out, b.Parameter)
	}
	return out
}
