//go:build darwin

package btj7c

import "github.com/fako1024/gatt"

var defaultBTClientOptions = []gatt.Option{
	gatt.MacDeviceRole(gatt.CentralManager),
}
