package ble

import "strings"

// Names advertised by supported sensors, lower case.
var ValidDeviceNames = []string{"flower power", "parrot pot"}

// DevicePrefix is the vendor prefix of Parrot sensor addresses.
const DevicePrefix = "A0:14:3D:"

// Device is one discovered peripheral.
type Device struct {
	Address string
	Name    string
	RSSI    int16
}

// IsParrotDevice reports whether a peripheral looks like a supported sensor,
// either by advertised name or by address prefix.
func IsParrotDevice(address, name string) bool {
	n := strings.ToLower(name)
	for _, v := range ValidDeviceNames {
		if n == v {
			return true
		}
	}
	return address != "" && strings.HasPrefix(strings.ToUpper(address), DevicePrefix)
}

// FilterDevices keeps supported sensors, upper-cases their addresses and
// drops duplicates. The first name seen for an address wins unless it was
// empty.
func FilterDevices(seen []Device) []Device {
	var out []Device
	idx := make(map[string]int)
	for _, d := range seen {
		if !IsParrotDevice(d.Address, d.Name) {
			continue
		}
		d.Address = strings.ToUpper(d.Address)
		if i, ok := idx[d.Address]; ok {
			if out[i].Name == "" {
				out[i].Name = d.Name
			}
			continue
		}
		idx[d.Address] = len(out)
		out = append(out, d)
	}
	return out
}
