package outlet

import "time"

// Fixed metadata of the HS110(US) hardware revision being emulated. The
// energy monitor checks the field set strictly, so none of these may be
// dropped or renamed.
const (
	SoftwareVersion = "1.2.5 Build 171206 Rel.085954"
	HardwareVersion = "1.0"
	DeviceType      = "IOT.SMARTPLUGSWITCH"
	Model           = "HS110(US)"
	HardwareID      = "60FF6B258734EA6880E186F8C96DDC61"
	FirmwareID      = "00000000000000000000000000000000"
	OEMID           = "FFF22CFF774A0B89F7624BFC6F50D5DE"
	DeviceName      = "Wi-Fi Smart Plug With Energy Monitoring"
	ActiveMode      = "none"
	Feature         = "TIM:ENE"
	RSSI            = -60
	Latitude        = 39.8283
	Longitude       = -98.5795
)

type Response struct {
	Emeter EmeterResponse `json:"emeter"`
	System SystemResponse `json:"system"`
}

type EmeterResponse struct {
	GetRealtime Realtime `json:"get_realtime"`
}

type SystemResponse struct {
	GetSysinfo SysInfo `json:"get_sysinfo"`
}

type Realtime struct {
	Current float64 `json:"current"`
	Voltage float64 `json:"voltage"`
	Power   float64 `json:"power"`
	Total   int     `json:"total"`
	ErrCode int     `json:"err_code"`
}

type SysInfo struct {
	ErrCode    int     `json:"err_code"`
	SwVer      string  `json:"sw_ver"`
	HwVer      string  `json:"hw_ver"`
	Type       string  `json:"type"`
	Model      string  `json:"model"`
	MAC        string  `json:"mac"`
	DeviceID   string  `json:"deviceId"`
	HwID       string  `json:"hwId"`
	FwID       string  `json:"fwId"`
	OEMID      string  `json:"oemId"`
	Alias      string  `json:"alias"`
	DevName    string  `json:"dev_name"`
	IconHash   string  `json:"icon_hash"`
	RelayState int     `json:"relay_state"`
	OnTime     float64 `json:"on_time"`
	ActiveMode string  `json:"active_mode"`
	Feature    string  `json:"feature"`
	Updating   int     `json:"updating"`
	RSSI       int     `json:"rssi"`
	LEDOff     int     `json:"led_off"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// BuildResponse assembles the realtime and sysinfo reply a genuine plug
// with o's readings would send at now.
func BuildResponse(o Outlet, now time.Time) Response {
	relay := 0
	if o.Power > 0 {
		relay = 1
	}
	return Response{
		Emeter: EmeterResponse{
			GetRealtime: Realtime{
				Current: o.Current,
				Voltage: o.Voltage,
				Power:   o.Power,
			},
		},
		System: SystemResponse{
			GetSysinfo: SysInfo{
				SwVer:      SoftwareVersion,
				HwVer:      HardwareVersion,
				Type:       DeviceType,
				Model:      Model,
				MAC:        o.MAC,
				DeviceID:   o.DeviceID,
				HwID:       HardwareID,
				FwID:       FirmwareID,
				OEMID:      OEMID,
				Alias:      o.Alias,
				DevName:    DeviceName,
				RelayState: relay,
				OnTime:     o.Uptime(now).Seconds(),
				ActiveMode: ActiveMode,
				Feature:    Feature,
				RSSI:       RSSI,
				Latitude:   Latitude,
				Longitude:  Longitude,
			},
		},
	}
}
