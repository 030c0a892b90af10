// Package l1packets is the packet layer of the pipeline.
//
// parse decodes the fixed-size Velodyne and Ouster payloads into borrowed
// views; network moves those payloads in and out of the process over UDP
// and pcap captures. Nothing here depends on calibration or frame assembly.
package l1packets
