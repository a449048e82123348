package route

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/scenariosearch/internal/scenario"
)

// File is the on-disk route definition document:
//
//	routes:
//	  - name: route_00
//	    town: Town05
//	    weather_preset: ClearNoon
//	    trajectory:
//	      - {x: 10, y: 20, z: 0.5, yaw: 90}
//	      - {x: 10, y: 180, z: 0.5, yaw: 90}
type File struct {
	Routes []Definition `yaml:"routes"`
}

// Definition is one route entry. Weather may be given as a preset name or
// inline; the inline block wins when both are set.
type Definition struct {
	Name          string              `yaml:"name"`
	Town          string              `yaml:"town"`
	WeatherPreset string              `yaml:"weather_preset"`
	Weather       *scenario.Weather   `yaml:"weather"`
	Trajectory    []scenario.Waypoint `yaml:"trajectory"`
}

// LoadFile reads and parses a route definition file.
func LoadFile(path string) ([]scenario.RouteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}
	routes, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return routes, nil
}

// Parse converts a YAML route document into base route configurations.
func Parse(data []byte) ([]scenario.RouteConfig, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse routes: %w", err)
	}
	if len(f.Routes) == 0 {
		return nil, fmt.Errorf("no routes defined")
	}

	routes := make([]scenario.RouteConfig, 0, len(f.Routes))
	for i, def := range f.Routes {
		rc, err := def.config(i)
		if err != nil {
			return nil, err
		}
		routes = append(routes, rc)
	}
	return routes, nil
}

func (d Definition) config(i int) (scenario.RouteConfig, error) {
	name := d.Name
	if name == "" {
		name = fmt.Sprintf("route_%02d", i)
	}
	if d.Town == "" {
		return scenario.RouteConfig{}, fmt.Errorf("route %s: town is required", name)
	}
	if len(d.Trajectory) < 2 {
		return scenario.RouteConfig{}, fmt.Errorf("route %s: trajectory needs at least 2 waypoints, got %d", name, len(d.Trajectory))
	}

	weather := scenario.Presets["ClearNoon"]
	if d.WeatherPreset != "" {
		w, err := scenario.LookupPreset(d.WeatherPreset)
		if err != nil {
			return scenario.RouteConfig{}, fmt.Errorf("route %s: %w", name, err)
		}
		weather = w
	}
	if d.Weather != nil {
		weather = *d.Weather
	}

	return scenario.RouteConfig{
		Name:       name,
		Index:      i,
		Town:       d.Town,
		Trajectory: append([]scenario.Waypoint(nil), d.Trajectory...),
		Weather:    weather,
	}, nil
}
