package models

import "net"

// House is the top-level tenant owning environments and a selected playlist.
type House struct {
	ID                string        `json:"id"`
	CurrentPlaylistID string        `json:"current_playlist_id,omitempty"`
	Environments      []Environment `json:"environments,omitempty"`
}

// Environment groups one or more screens within a house.
type Environment struct {
	ID        string   `json:"id"`
	HouseID   string   `json:"house_id"`
	Name      string   `json:"name"`
	IPAddress string   `json:"ip_address,omitempty"`
	CryptKey  string   `json:"crypt_key,omitempty"`
	Screens   []Screen `json:"screens,omitempty"`
}

// Screen is a device endpoint with power/enabled state and pixel dimensions.
type Screen struct {
	ID            string `json:"id"`
	EnvironmentID string `json:"environment_id"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	On            bool   `json:"on"`
	Enabled       bool   `json:"enabled"`
	Seq           int    `json:"seq"`
}

// Dimensions is a pixel size requested on activation.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultDimensions is used when no local size could be detected.
var DefaultDimensions = Dimensions{Width: 1920, Height: 1080}

// IsZero reports whether either side is unset.
func (d Dimensions) IsZero() bool { return d.Width <= 0 || d.Height <= 0 }

// Session identifies the caller towards the provisioning backend.
type Session struct {
	Token string `json:"-"`
}

// CopyResult is returned by the backend after default content was copied.
type CopyResult struct {
	HouseID   string `json:"house_id"`
	Playlists int    `json:"playlists"`
	Media     int    `json:"media"`
}

// IsFaulty reports an enabled screen that is missing dimensions or powered off.
func (s Screen) IsFaulty() bool {
	return s.Enabled && (s.Width == 0 || s.Height == 0 || !s.On)
}

// IsActive reports a non-faulty, powered-on screen with positive dimensions.
func (s Screen) IsActive() bool {
	return !s.IsFaulty() && s.On && s.Width > 0 && s.Height > 0
}

// IsMaster reports whether the environment is bound to a loopback address.
func (e Environment) IsMaster() bool {
	ip := net.ParseIP(e.IPAddress)
	if ip == nil {
		return e.IPAddress == "localhost"
	}
	return ip.IsLoopback()
}

// FindScreen looks a screen up by id.
func (e Environment) FindScreen(screenID string) (Screen, bool) {
	for _, s := range e.Screens {
		if s.ID == screenID {
			return s, true
		}
	}
	return Screen{}, false
}

// FindEnvironment looks an environment up by id.
func (h House) FindEnvironment(environmentID string) (Environment, bool) {
	for _, e := range h.Environments {
		if e.ID == environmentID {
			return e, true
		}
	}
	return Environment{}, false
}

// FindHouse looks a house up by id in a fetched graph.
func FindHouse(houses []House, houseID string) (House, bool) {
	for _, h := range houses {
		if h.ID == houseID {
			return h, true
		}
	}
	return House{}, false
}
