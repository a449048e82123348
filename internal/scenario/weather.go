package scenario

import "fmt"

// Weather mirrors the simulator's weather parameter block.
type Weather struct {
	Cloudiness            float64 `json:"cloudiness" yaml:"cloudiness"`
	Precipitation         float64 `json:"precipitation" yaml:"precipitation"`
	PrecipitationDeposits float64 `json:"precipitationDeposits" yaml:"precipitation_deposits"`
	WindIntensity         float64 `json:"windIntensity" yaml:"wind_intensity"`
	SunAzimuthAngle       float64 `json:"sunAzimuthAngle" yaml:"sun_azimuth_angle"`
	SunAltitudeAngle      float64 `json:"sunAltitudeAngle" yaml:"sun_altitude_angle"`
	FogDensity            float64 `json:"fogDensity" yaml:"fog_density"`
	Wetness               float64 `json:"wetness" yaml:"wetness"`
	FogFalloff            float64 `json:"fogFalloff" yaml:"fog_falloff"`
}

// weatherThreshold splits each weather component into a neutral lower half
// and a graduated upper half.
const weatherThreshold = 0.5

// thresholded returns 0 at or below the threshold and (c-0.5)*2*scale above it.
func thresholded(c, scale float64) float64 {
	if c <= weatherThreshold {
		return 0
	}
	return (c - weatherThreshold) * 2 * scale
}

// DecodeWeather converts the nine weather components of a vector.
func DecodeWeather(c []float64) Weather {
	w := Weather{
		Cloudiness:            thresholded(c[0], 100),
		Precipitation:         thresholded(c[1], 100),
		PrecipitationDeposits: thresholded(c[2], 100),
		WindIntensity:         thresholded(c[3], 100),
		SunAzimuthAngle:       thresholded(c[4], 360),
		FogDensity:            thresholded(c[6], 100),
		Wetness:               thresholded(c[7], 100),
		FogFalloff:            thresholded(c[8], 5),
	}
	if c[5] > weatherThreshold {
		w.SunAltitudeAngle = thresholded(c[5], 180) - 90
	}
	return w
}

// Presets are the named weathers a route file may reference.
var Presets = map[string]Weather{
	"ClearNoon":       {Cloudiness: 5, SunAzimuthAngle: 45, SunAltitudeAngle: 75, FogFalloff: 0.1},
	"ClearSunset":     {Cloudiness: 5, SunAzimuthAngle: 45, SunAltitudeAngle: 15, FogFalloff: 0.1},
	"CloudyNoon":      {Cloudiness: 60, SunAzimuthAngle: 45, SunAltitudeAngle: 75, FogFalloff: 0.1},
	"CloudySunset":    {Cloudiness: 60, SunAzimuthAngle: 45, SunAltitudeAngle: 15, FogFalloff: 0.1},
	"WetNoon":         {Cloudiness: 5, PrecipitationDeposits: 50, SunAzimuthAngle: 45, SunAltitudeAngle: 75, Wetness: 50, FogFalloff: 0.1},
	"WetSunset":       {Cloudiness: 5, PrecipitationDeposits: 50, SunAzimuthAngle: 45, SunAltitudeAngle: 15, Wetness: 50, FogFalloff: 0.1},
	"MidRainyNoon":    {Cloudiness: 60, Precipitation: 60, PrecipitationDeposits: 60, WindIntensity: 60, SunAzimuthAngle: 45, SunAltitudeAngle: 75, Wetness: 60, FogFalloff: 0.1},
	"MidRainSunset":   {Cloudiness: 60, Precipitation: 60, PrecipitationDeposits: 60, WindIntensity: 60, SunAzimuthAngle: 45, SunAltitudeAngle: 15, Wetness: 60, FogFalloff: 0.1},
	"WetCloudyNoon":   {Cloudiness: 60, PrecipitationDeposits: 50, SunAzimuthAngle: 45, SunAltitudeAngle: 75, Wetness: 50, FogFalloff: 0.1},
	"WetCloudySunset": {Cloudiness: 60, PrecipitationDeposits: 50, SunAzimuthAngle: 45, SunAltitudeAngle: 15, Wetness: 50, FogFalloff: 0.1},
	"HardRainNoon":    {Cloudiness: 100, Precipitation: 100, PrecipitationDeposits: 100, WindIntensity: 100, SunAzimuthAngle: 45, SunAltitudeAngle: 75, Wetness: 100, FogFalloff: 0.1},
	"HardRainSunset":  {Cloudiness: 100, Precipitation: 100, PrecipitationDeposits: 100, WindIntensity: 100, SunAzimuthAngle: 45, SunAltitudeAngle: 15, Wetness: 100, FogFalloff: 0.1},
	"SoftRainNoon":    {Cloudiness: 20, Precipitation: 30, PrecipitationDeposits: 50, WindIntensity: 30, SunAzimuthAngle: 45, SunAltitudeAngle: 75, Wetness: 50, FogFalloff: 0.1},
	"SoftRainSunset":  {Cloudiness: 20, Precipitation: 30, PrecipitationDeposits: 50, WindIntensity: 30, SunAzimuthAngle: 45, SunAltitudeAngle: 15, Wetness: 50, FogFalloff: 0.1},
}

// LookupPreset returns the named weather preset.
func LookupPreset(name string) (Weather, error) {
	w, ok := Presets[name]
	if !ok {
		return Weather{}, &DecodeError{Field: "weather", Reason: fmt.Sprintf("unknown preset %q", name)}
	}
	return w, nil
}
