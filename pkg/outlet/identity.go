package outlet

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// MACPrefix is the vendor prefix every derived MAC address starts with.
var MACPrefix = [3]byte{0x35, 0x4B, 0x1F}

const deviceIDCacheSize = 256

var deviceIDs = struct {
	sync.Mutex
	m map[string]string
}{m: make(map[string]string, deviceIDCacheSize)}

// DeriveDeviceID returns the uppercase hex SHA-1 of id. The same id always
// yields the same device ID, so results are memoized.
func DeriveDeviceID(id string) string {
	deviceIDs.Lock()
	defer deviceIDs.Unlock()
	if v, ok := deviceIDs.m[id]; ok {
		return v
	}
	sum := sha1.Sum([]byte(id))
	v := strings.ToUpper(hex.EncodeToString(sum[:]))
	if len(deviceIDs.m) >= deviceIDCacheSize {
		deviceIDs.m = make(map[string]string, deviceIDCacheSize)
	}
	deviceIDs.m[id] = v
	return v
}

// DeriveMAC builds a MAC address from MACPrefix and the first three bytes
// of deviceID. The device ID must be an even number of hex characters and
// at least three bytes long.
func DeriveMAC(deviceID string) (string, error) {
	if len(deviceID)%2 != 0 {
		return "", fmt.Errorf("device ID %q has an odd number of hex characters", deviceID)
	}
	if len(deviceID) < 6 {
		return "", fmt.Errorf("device ID %q is shorter than 3 bytes", deviceID)
	}
	tail, err := hex.DecodeString(deviceID[:6])
	if err != nil {
		return "", fmt.Errorf("device ID %q is not hex: %w", deviceID, err)
	}
	b := make([]byte, 0, len(MACPrefix)+len(tail))
	b = append(b, MACPrefix[:]...)
	b = append(b, tail...)
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, ":"), nil
}
