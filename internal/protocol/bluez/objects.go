// internal/protocol/bluez/objects.go
package bluez

import (
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"

	"printer-service/pkg/driver"
)

const (
	busName           = "org.bluez"
	adapterInterface  = "org.bluez.Adapter1"
	deviceInterface   = "org.bluez.Device1"
	serviceInterface  = "org.bluez.GattService1"
	charInterface     = "org.bluez.GattCharacteristic1"
	propsInterface    = "org.freedesktop.DBus.Properties"
	getManagedObjects = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
)

// managedObjects is the reply of ObjectManager.GetManagedObjects
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// devicePath builds the BlueZ object path of address under adapter
func devicePath(adapter dbus.ObjectPath, address string) dbus.ObjectPath {
	return dbus.ObjectPath(string(adapter) + "/dev_" + strings.ReplaceAll(strings.ToUpper(address), ":", "_"))
}

// sortedPaths returns the object paths carrying iface under prefix, in path order.
// BlueZ names GATT objects after their handles, so path order is peripheral order.
func (objs managedObjects) sortedPaths(prefix, iface string) []dbus.ObjectPath {
	var paths []dbus.ObjectPath
	for path, ifaces := range objs {
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		if _, ok := ifaces[iface]; ok {
			paths = append(paths, path)
		}
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}

// advertisements lists every Device1 known under adapter
func (objs managedObjects) advertisements(adapter dbus.ObjectPath) []driver.Advertisement {
	var ads []driver.Advertisement
	for _, path := range objs.sortedPaths(string(adapter)+"/dev_", deviceInterface) {
		props := objs[path][deviceInterface]
		address := stringProp(props, "Address")
		if address == "" {
			continue
		}
		name := stringProp(props, "Name")
		if name == "" {
			name = stringProp(props, "Alias")
		}
		ads = append(ads, driver.Advertisement{
			Address:      address,
			LocalName:    name,
			RSSI:         int(int16Prop(props, "RSSI")),
			ServiceUUIDs: stringsProp(props, "UUIDs"),
			Connectable:  true,
		})
	}
	return ads
}

// service finds the GattService1 with uuid under device
func (objs managedObjects) service(device dbus.ObjectPath, uuid string) (dbus.ObjectPath, bool) {
	for _, path := range objs.sortedPaths(string(device)+"/service", serviceInterface) {
		if driver.SameUUID(stringProp(objs[path][serviceInterface], "UUID"), uuid) {
			return path, true
		}
	}
	return "", false
}

// characteristics lists the GattCharacteristic1 objects directly under service
func (objs managedObjects) characteristics(service dbus.ObjectPath) []*driver.Characteristic {
	var chars []*driver.Characteristic
	for _, path := range objs.sortedPaths(string(service)+"/char", charInterface) {
		// descriptors live below characteristics and carry a different interface
		props := objs[path][charInterface]
		chars = append(chars, &driver.Characteristic{
			UUID:       driver.NormalizeUUID(stringProp(props, "UUID")),
			Properties: driver.ParseFlags(stringsProp(props, "Flags")),
			Handle:     path,
		})
	}
	return chars
}

func stringProp(props map[string]dbus.Variant, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

func stringsProp(props map[string]dbus.Variant, key string) []string {
	if v, ok := props[key]; ok {
		if s, ok := v.Value().([]string); ok {
			return s
		}
	}
	return nil
}

func int16Prop(props map[string]dbus.Variant, key string) int16 {
	if v, ok := props[key]; ok {
		if n, ok := v.Value().(int16); ok {
			return n
		}
	}
	return 0
}

func boolProp(props map[string]dbus.Variant, key string) bool {
	if v, ok := props[key]; ok {
		if b, ok := v.Value().(bool); ok {
			return b
		}
	}
	return false
}
