package calibration

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/spinlidar/internal/lidar"
)

//go:embed params/*.yaml
var paramsFS embed.FS

// maxParamsSize bounds calibration files read from disk.
const maxParamsSize = 1 << 20

// laserRecord is one entry of a velodyne_pointcloud style params file.
// Angles are radians and offsets metres. The distance and focal corrections
// are accepted but not applied.
type laserRecord struct {
	DistCorrection        float64  `yaml:"dist_correction"`
	DistCorrectionX       float64  `yaml:"dist_correction_x"`
	DistCorrectionY       float64  `yaml:"dist_correction_y"`
	FocalDistance         float64  `yaml:"focal_distance"`
	FocalSlope            float64  `yaml:"focal_slope"`
	HorizOffsetCorrection *float64 `yaml:"horiz_offset_correction"`
	LaserID               int      `yaml:"laser_id"`
	RotCorrection         float64  `yaml:"rot_correction"`
	VertCorrection        float64  `yaml:"vert_correction"`
	VertOffsetCorrection  float64  `yaml:"vert_offset_correction"`
}

type paramsFile struct {
	Lasers             []laserRecord `yaml:"lasers"`
	NumLasers          int           `yaml:"num_lasers"`
	DistanceResolution float64       `yaml:"distance_resolution"`
}

// ParseYAML decodes a params file and validates it with NewTable.
// rot_correction is subtracted from the firing azimuth by the sensor
// driver, so it becomes a negated azimuth offset here.
func ParseYAML(r io.Reader) (*Table, error) {
	var pf paramsFile
	if err := yaml.NewDecoder(io.LimitReader(r, maxParamsSize)).Decode(&pf); err != nil {
		return nil, fmt.Errorf("failed to parse calibration params: %w", err)
	}

	params := make([]LaserParameter, 0, len(pf.Lasers))
	ids := make([]int, 0, len(pf.Lasers))
	for _, l := range pf.Lasers {
		p := LaserParameter{
			ElevationDeg:     lidar.RadToDeg(l.VertCorrection),
			AzimuthOffsetDeg: -lidar.RadToDeg(l.RotCorrection),
			VerticalOffset:   l.VertOffsetCorrection,
		}
		if l.HorizOffsetCorrection != nil {
			p.HorizontalOffset = *l.HorizOffsetCorrection
		}
		params = append(params, p)
		ids = append(ids, l.LaserID)
	}
	return NewTable(params, ids, pf.NumLasers, pf.DistanceResolution)
}

// LoadFile reads a params file from disk.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open calibration file: %w", err)
	}
	defer f.Close()

	t, err := ParseYAML(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t.WithName(filepath.Base(path)), nil
}

// LoadEmbedded reads one of the params files compiled into the binary,
// by base name without extension (e.g. "VLP16db").
func LoadEmbedded(name string) (*Table, error) {
	f, err := paramsFS.Open("params/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no embedded calibration %q (have %s)", name, strings.Join(EmbeddedNames(), ", "))
	}
	defer f.Close()

	t, err := ParseYAML(f)
	if err != nil {
		return nil, fmt.Errorf("embedded %s: %w", name, err)
	}
	return t.WithName(name), nil
}

// EmbeddedNames lists the params files available to LoadEmbedded.
func EmbeddedNames() []string {
	entries, err := paramsFS.ReadDir("params")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	return names
}

// Resolve picks a table for the CLI: "" uses the model's built-in table,
// "embed:NAME" an embedded params file, anything else a path on disk.
func Resolve(source string, m lidar.Model) (*Table, error) {
	switch {
	case source == "":
		return ForModel(m)
	case strings.HasPrefix(source, "embed:"):
		return LoadEmbedded(strings.TrimPrefix(source, "embed:"))
	default:
		return LoadFile(source)
	}
}
