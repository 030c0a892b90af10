// Package l2frames owns Layer 2 (Frames) of the LiDAR data model.
//
// Responsibilities: folding the per-packet point stream into columns and
// complete rotation frames. A frame ends where the firing azimuth drops
// (wraparound from ~360° back to ~0°); a column ends where the laser id
// drops.
// Key types: Assembler, Frame, Sample.
//
// Dependency rule: l2frames depends only on the shared lidar types, never
// on pipeline or monitor.
package l2frames
