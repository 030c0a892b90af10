package calibration

import (
	"fmt"

	"github.com/banshee-data/spinlidar/internal/lidar"
)

// Factory constants for the supported Velodyne models. Angles in degrees,
// offsets in millimetres, indexed by firing order.
var (
	VLP16_ELEVATION = [16]float64{
		-15.0, 1.0, -13.0, 3.0, -11.0, 5.0, -9.0, 7.0, -7.0, 9.0, -5.0, 11.0, -3.0, 13.0, -1.0, 15.0,
	}
	VLP16_VERTICAL_OFFSET_MM = [16]float64{
		11.2, -0.7, 9.7, -2.2, 8.1, -3.7, 6.6, -5.1, 5.1, -6.6, 3.7, -8.1, 2.2, -9.7, 0.7, -11.2,
	}
	// Row -> laser, top to bottom.
	VLP16_ROW_ORDER = [16]int{15, 13, 11, 9, 7, 5, 3, 1, 14, 12, 10, 8, 6, 4, 2, 0}

	PUCK_HIRES_ELEVATION = [16]float64{
		-10.00, 0.67, -8.67, 2.00, -7.33, 3.33, -6.00, 4.67, -4.67, 6.00, -3.33, 7.33, -2.00, 8.67, -0.67, 10.00,
	}
	PUCK_HIRES_VERTICAL_OFFSET_MM = [16]float64{
		7.4, -0.9, 6.5, -1.8, 5.5, -2.7, 4.6, -3.7, 3.7, -4.6, 2.7, -5.5, 1.8, -6.5, 0.9, -7.4,
	}

	VLP32C_ELEVATION = [32]float64{
		-25.0, -1.0, -1.667, -15.639, -11.31, 0.0, -0.667, -8.843, -7.254, 0.333, -0.333, -6.148,
		-5.333, 1.333, 0.667, -4.0, -4.667, 1.667, 1.0, -3.667, -3.333, 3.333, 2.333, -2.667, -3.0,
		7.0, 4.667, -2.333, -2.0, 15.0, 10.333, -1.333,
	}
	VLP32C_AZIMUTH_OFFSET = [32]float64{
		1.4, -4.2, 1.4, -1.4, 1.4, -1.4, 4.2, -1.4, 1.4, -4.2, 1.4, -1.4, 4.2, -1.4, 4.2, -1.4, 1.4,
		-4.2, 1.4, -4.2, 4.2, -1.4, 1.4, -1.4, 1.4, -1.4, 1.4, -4.2, 4.2, -1.4, 1.4, -1.4,
	}
	VLP32C_ROW_ORDER = [32]int{
		29, 30, 25, 26, 21, 22, 17, 13, 18, 14, 9, 5, 10, 6, 1, 31, 2, 28, 27, 23, 24, 20, 19, 15, 16,
		12, 11, 8, 7, 4, 3, 0,
	}
)

const (
	RESOLUTION_16_CHANNEL = 0.002 // metres per unit
	RESOLUTION_32_CHANNEL = 0.004
)

// build zips per-laser constants into a table. A nil slice means zero for
// every laser.
func build(name string, elevation, azimuth, verticalMM, horizontalMM []float64, rowOrder []int, resolution float64) *Table {
	lasers := make([]LaserParameter, 0, len(elevation))
	for i, el := range elevation {
		lasers = append(lasers, LaserParameter{
			ElevationDeg:     el,
			AzimuthOffsetDeg: at(azimuth, i),
			VerticalOffset:   at(verticalMM, i) / 1000,
			HorizontalOffset: at(horizontalMM, i) / 1000,
		})
	}
	rows := rowsByElevation(lasers)
	if rowOrder != nil {
		rows = invert(rowOrder)
	}
	return &Table{name: name, lasers: lasers, rows: rows, resolution: resolution}
}

func at(s []float64, i int) float64 {
	if s == nil {
		return 0
	}
	return s[i]
}

func VLP16() *Table {
	return build("vlp16", VLP16_ELEVATION[:], nil, VLP16_VERTICAL_OFFSET_MM[:], nil, VLP16_ROW_ORDER[:], RESOLUTION_16_CHANNEL)
}

// PuckLite shares the VLP-16 geometry.
func PuckLite() *Table {
	return build("puck-lite", VLP16_ELEVATION[:], nil, VLP16_VERTICAL_OFFSET_MM[:], nil, VLP16_ROW_ORDER[:], RESOLUTION_16_CHANNEL)
}

// PuckHiRes fires in the same order as the VLP-16 over a ±10° field of view.
func PuckHiRes() *Table {
	return build("puck-hires", PUCK_HIRES_ELEVATION[:], nil, PUCK_HIRES_VERTICAL_OFFSET_MM[:], nil, VLP16_ROW_ORDER[:], RESOLUTION_16_CHANNEL)
}

func VLP32C() *Table {
	return build("vlp32c", VLP32C_ELEVATION[:], VLP32C_AZIMUTH_OFFSET[:], nil, nil, VLP32C_ROW_ORDER[:], RESOLUTION_32_CHANNEL)
}

// ForModel returns the built-in table for m. Ouster sensors report their
// beam angles at runtime, so they need an external table.
func ForModel(m lidar.Model) (*Table, error) {
	switch m {
	case lidar.ModelVLP16:
		return VLP16(), nil
	case lidar.ModelPuckLite:
		return PuckLite(), nil
	case lidar.ModelPuckHiRes:
		return PuckHiRes(), nil
	case lidar.ModelVLP32C:
		return VLP32C(), nil
	}
	return nil, fmt.Errorf("no built-in calibration for model %s", m)
}
