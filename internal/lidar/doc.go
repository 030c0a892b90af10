// Package lidar holds the types shared by every stage of the packet-to-frame
// pipeline: sensor models and return modes, calibrated points, spherical
// projection, packet statistics and the package-level log streams.
//
// Subpackages own the stages themselves: l1packets decodes and captures
// packets, calibration holds per-laser tables, convert turns packets into
// points, l2frames assembles rotations and pipeline wires them per sensor.
package lidar
